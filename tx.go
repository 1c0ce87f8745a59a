package docmap

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.etcd.io/bbolt"
)

// Txish is implemented by both read (*Tx) and write (*WriteTx) transactions;
// read operations accept any Txish.
type Txish interface {
	DBTx() *Tx
}

// Tx is a read transaction. It sees a consistent snapshot of the database,
// unaffected by concurrent writers. Values and cursors obtained from a Tx are
// only valid until it is closed; afterwards they fail with ErrTxClosed.
//
// A Tx must not be used from multiple goroutines at once.
type Tx struct {
	db       *DB
	stx      storageTx
	writable bool
	closed   bool

	startTime time.Time
	stack     string
}

// WriteTx is a write transaction. At most one is active at a time, which the
// storage enforces by blocking BeginUpdate. Changes become durable on Commit.
type WriteTx struct {
	Tx
	written bool
}

func (db *DB) newTx(stx storageTx, writable bool) Tx {
	tx := Tx{
		db:        db,
		stx:       stx,
		writable:  writable,
		startTime: time.Now(),
	}
	if trackTxns {
		tx.stack = string(debug.Stack())
	}
	return tx
}

// DBTx implements Txish
func (tx *Tx) DBTx() *Tx {
	return tx
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (tx *Tx) Schema() *Schema {
	return tx.db.schema
}

// BoltTx returns the underlying Bolt transaction, or nil for other backends.
func (tx *Tx) BoltTx() *bbolt.Tx {
	if btx, ok := tx.stx.(interface{ BoltTx() *bbolt.Tx }); ok {
		return btx.BoltTx()
	}
	return nil
}

func (tx *Tx) IsWritable() bool {
	return tx.writable
}

func (tx *Tx) IsClosed() bool {
	return tx.closed
}

func (tx *Tx) check() error {
	if tx == nil {
		panic("nil tx")
	}
	if tx.closed {
		return ErrTxClosed
	}
	return nil
}

func (tx *Tx) bucket(m Mapping) (storageBucket, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	buck, err := tx.stx.Bucket(m.name)
	if err != nil {
		return nil, storageErr("open", m, err)
	}
	if buck == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMapping, m.name)
	}
	return buck, nil
}

func (tx *Tx) isVerboseLoggingEnabled() bool {
	return tx.db.isVerboseLoggingEnabled()
}

func (tx *Tx) logOp(msg string, attrs ...slog.Attr) {
	tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Close ends the transaction, discarding uncommitted changes of a write
// transaction. Closing a committed or closed transaction is a no-op.
func (tx *Tx) Close() {
	if tx.closed {
		return
	}
	tx.closed = true
	err := tx.stx.Rollback()
	if err != nil {
		tx.db.logger.Warn("docmap: rollback failed", "err", err)
	}
	tx.db.removeTx(tx)
	if tx.writable {
		tx.db.WriterCount.Add(-1)
	} else {
		tx.db.ReaderCount.Add(-1)
	}
}

func (tx *WriteTx) markWritten() {
	tx.written = true
}

// Commit makes the changes durable and closes the transaction.
func (tx *WriteTx) Commit() error {
	if err := tx.check(); err != nil {
		return err
	}
	size := tx.stx.Size()
	err := tx.stx.Commit()
	tx.Close()
	if err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	if tx.written {
		tx.db.WriteCount.Add(1)
	}
	tx.db.lastSize.Store(size)
	return nil
}

func (db *DB) BeginRead() (*Tx, error) {
	stx, err := db.stor.BeginTx(false)
	if err != nil {
		return nil, &StorageError{Op: "begin read", Err: err}
	}
	tx := db.newTx(stx, false)
	db.ReaderCount.Add(1)
	db.ReadCount.Add(1)
	db.addTx(&tx)
	return &tx, nil
}

// BeginUpdate starts a write transaction, blocking while another one is active.
func (db *DB) BeginUpdate() (*WriteTx, error) {
	db.PendingWriterCount.Add(1)
	stx, err := db.stor.BeginTx(true)
	db.PendingWriterCount.Add(-1)
	if err != nil {
		return nil, &StorageError{Op: "begin write", Err: err}
	}
	tx := &WriteTx{Tx: db.newTx(stx, true)}
	db.WriterCount.Add(1)
	db.addTx(&tx.Tx)
	return tx, nil
}

// Read runs f in a read transaction.
func (db *DB) Read(f func(tx *Tx) error) error {
	tx, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return f(tx)
}

// Write runs f in a write transaction and commits it if f returns nil.
// If f fails or panics, all changes are rolled back; a panic is returned as
// an error.
func (db *DB) Write(f func(tx *WriteTx) error) error {
	tx, err := db.BeginUpdate()
	if err != nil {
		return err
	}
	defer tx.Close()
	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*WriteTx) error, tx *WriteTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}
