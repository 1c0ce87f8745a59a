package docmap

import (
	"context"
	"iter"
	"log/slog"
	"slices"
)

const (
	debugLogCursors = false
)

// Cursor walks the entries of a mapping in ascending DocumentID order.
//
//	c := m.Iterate(tx)
//	for c.Next() {
//		use(c.ID(), c.UserID())
//	}
//	if err := c.Err(); err != nil {
//		...
//	}
//
// A cursor cannot be rewound; call Iterate again to start over. Once Next
// returns false the cursor is done, and Err reports whether it stopped
// because of a failure. A failed cursor never resumes.
type Cursor struct {
	tx      *Tx
	mapping Mapping
	bcur    storageCursor
	start   []byte
	init    bool
	done    bool
	moved   bool
	id      DocumentID
	val     []byte
	err     error
}

func (tx *Tx) newCursor(m Mapping, start []byte) *Cursor {
	c := &Cursor{tx: tx, mapping: m, start: start}
	buck, err := tx.bucket(m)
	if err != nil {
		c.fail(err)
		return c
	}
	c.bcur = buck.Cursor()
	return c
}

func (c *Cursor) fail(err error) {
	c.err = err
	c.done = true
	c.val = nil
}

// Next advances to the next entry and reports whether there is one.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if c.tx.closed {
		c.fail(ErrTxClosed)
		return false
	}

	var k, v []byte
	if !c.init {
		c.init = true
		if c.start != nil {
			k, v = c.bcur.Seek(c.start)
		} else {
			k, v = c.bcur.First()
		}
	} else {
		k, v = c.bcur.Next()
	}
	if debugLogCursors {
		c.tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "CURSOR", slog.String("mapping", c.mapping.name), hexAttr("key", k), hexAttr("val", v))
	}

	if k == nil {
		if err := c.bcur.Err(); err != nil {
			c.fail(storageErr("iterate", c.mapping, err))
		} else {
			c.done = true
			c.val = nil
		}
		return false
	}

	id, err := DecodeDocumentID(k)
	if err != nil {
		c.tx.db.logger.LogAttrs(context.Background(), slog.LevelWarn, "docmap: malformed key", slog.String("mapping", c.mapping.name), hexAttr("key", k))
		c.fail(storageErr("iterate", c.mapping, err))
		return false
	}
	if c.moved && id <= c.id {
		c.fail(storageErr("iterate", c.mapping, dataErrf(slices.Clone(k), 0, nil, "document id %d out of order after %d", id, c.id)))
		return false
	}
	c.id, c.val, c.moved = id, v, true
	return true
}

// ID returns the DocumentID of the current entry.
func (c *Cursor) ID() DocumentID {
	return c.id
}

// UserID returns the UserID of the current entry.
func (c *Cursor) UserID() string {
	return string(c.val)
}

// UserIDBytes returns the UserID of the current entry without copying.
// The slice must not be modified and is only valid until the transaction ends.
func (c *Cursor) UserIDBytes() []byte {
	return c.val
}

func (c *Cursor) Entry() Entry {
	return Entry{c.id, string(c.val)}
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}

// All adapts the cursor for use with range. Check Err after the loop.
func (c *Cursor) All() iter.Seq2[DocumentID, string] {
	return func(yield func(DocumentID, string) bool) {
		for c.Next() {
			if !yield(c.id, string(c.val)) {
				return
			}
		}
	}
}

// AllEntries drains the cursor. On failure, it returns the entries read
// before the failure along with the error.
func AllEntries(c *Cursor) ([]Entry, error) {
	var result []Entry
	for c.Next() {
		result = append(result, c.Entry())
	}
	return result, c.Err()
}
