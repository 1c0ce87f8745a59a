package docmap

import (
	"errors"
	"sync/atomic"
	"testing"
)

var errInjected = errors.New("injected fault")

// faultyStorage wraps the in-memory storage and fails selected operations.
type faultyStorage struct {
	storage

	// failCursorAfter makes cursors fail after yielding this many pairs
	// (negative disables).
	failCursorAfter atomic.Int64
	failGet         atomic.Bool
	failPut         atomic.Bool
	failCommit      atomic.Bool
	failBegin       atomic.Bool
	failBucket      atomic.Bool
}

func newFaultyStorage() *faultyStorage {
	s := &faultyStorage{storage: newMemStorage()}
	s.failCursorAfter.Store(-1)
	return s
}

func setupFaulty(t testing.TB) (*DB, *faultyStorage) {
	t.Helper()
	stor := newFaultyStorage()
	db := must(openStorage(stor, nil, basicSchema, Options{IsTesting: true}))
	t.Cleanup(func() { ensure(db.Close()) })
	return db, stor
}

func (s *faultyStorage) BeginTx(writable bool) (storageTx, error) {
	if s.failBegin.Load() {
		return nil, errInjected
	}
	stx, err := s.storage.BeginTx(writable)
	if err != nil {
		return nil, err
	}
	return &faultyTx{storageTx: stx, s: s}, nil
}

type faultyTx struct {
	storageTx
	s *faultyStorage
}

func (tx *faultyTx) Bucket(name string) (storageBucket, error) {
	if tx.s.failBucket.Load() {
		return nil, errInjected
	}
	b, err := tx.storageTx.Bucket(name)
	if b == nil || err != nil {
		return nil, err
	}
	return &faultyBucket{storageBucket: b, s: tx.s}, nil
}

func (tx *faultyTx) Commit() error {
	if tx.s.failCommit.Load() {
		tx.storageTx.Rollback()
		return errInjected
	}
	return tx.storageTx.Commit()
}

type faultyBucket struct {
	storageBucket
	s *faultyStorage
}

func (b *faultyBucket) Get(key []byte) ([]byte, error) {
	if b.s.failGet.Load() {
		return nil, errInjected
	}
	return b.storageBucket.Get(key)
}

func (b *faultyBucket) Put(key, value []byte) error {
	if b.s.failPut.Load() {
		return errInjected
	}
	return b.storageBucket.Put(key, value)
}

func (b *faultyBucket) Cursor() storageCursor {
	return &faultyCursor{storageCursor: b.storageBucket.Cursor(), left: b.s.failCursorAfter.Load()}
}

type faultyCursor struct {
	storageCursor
	left int64
	err  error
}

func (c *faultyCursor) step(k, v []byte) ([]byte, []byte) {
	if c.err != nil || k == nil {
		return nil, nil
	}
	if c.left == 0 {
		c.err = errInjected
		return nil, nil
	}
	if c.left > 0 {
		c.left--
	}
	return k, v
}

func (c *faultyCursor) First() ([]byte, []byte) {
	return c.step(c.storageCursor.First())
}

func (c *faultyCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.step(c.storageCursor.Seek(seek))
}

func (c *faultyCursor) Next() ([]byte, []byte) {
	return c.step(c.storageCursor.Next())
}

func (c *faultyCursor) Err() error {
	return c.err
}

func TestFaultyStorage_Passthrough(t *testing.T) {
	db, _ := setupFaulty(t)
	putIDs(t, db, userIDs, 3, 1, 2)
	deepEqual(t, entries(t, db, userIDs), []Entry{{1, "u1"}, {2, "u2"}, {3, "u3"}})
}
