package docmap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrStorageFailure matches (via errors.Is) every *StorageError.
	ErrStorageFailure = errors.New("storage failure")

	// ErrTxClosed is returned when a transaction, or a cursor opened in it,
	// is used after the transaction has been committed or closed.
	ErrTxClosed = errors.New("transaction closed")

	ErrInvalidUserID    = errors.New("invalid user id")
	ErrIDSpaceExhausted = errors.New("document id space exhausted")
	ErrUnknownMapping   = errors.New("unknown mapping")
	ErrCorruptDump      = errors.New("corrupt dump")
)

// StorageError reports a failure of the underlying store: an I/O error,
// a transaction error, or malformed data found in a bucket.
type StorageError struct {
	Op      string
	Mapping string
	ID      DocumentID
	HasID   bool
	Err     error
}

func storageErr(op string, m Mapping, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Mapping: m.name, Err: err}
}

func storageErrID(op string, m Mapping, id DocumentID, err error) error {
	return &StorageError{Op: op, Mapping: m.name, ID: id, HasID: true, Err: err}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

func (e *StorageError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Mapping)
	if e.HasID {
		buf.WriteByte('/')
		buf.WriteString(strconv.FormatUint(uint64(e.ID), 10))
	}
	if e.Op != "" {
		if buf.Len() > 0 {
			buf.WriteString(": ")
		}
		buf.WriteString(e.Op)
	}
	if e.Err != nil {
		if buf.Len() > 0 {
			buf.WriteString(": ")
		}
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at %d: %v: %s", e.Msg, e.Off, e.Err, data)
	}
	return fmt.Sprintf("%s at %d: %s", e.Msg, e.Off, data)
}

func dumpErrf(record int, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%w: record %d: %s: %w", ErrCorruptDump, record, msg, err)
	}
	return fmt.Errorf("%w: record %d: %s", ErrCorruptDump, record, msg)
}
