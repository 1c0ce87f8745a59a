package docmap

import (
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Mapping is a persisted DocumentID → UserID association. It is a small
// value referencing a bucket, safe to copy and to share between goroutines;
// all state lives in the database and is accessed through transactions.
type Mapping struct {
	name string
}

// Entry is a single DocumentID → UserID pair.
type Entry struct {
	ID     DocumentID
	UserID string
}

func (m Mapping) Name() string {
	return m.name
}

func (m Mapping) String() string {
	return m.name
}

func validateUserID(userID string) error {
	if userID == "" || !utf8.ValidString(userID) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}

// Put associates userID with id, replacing any previous association.
func (m Mapping) Put(tx *WriteTx, id DocumentID, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	buck, err := tx.bucket(m)
	if err != nil {
		return err
	}
	err = buck.Put(id.Bytes(), []byte(userID))
	if err != nil {
		return storageErrID("put", m, id, err)
	}
	tx.markWritten()
	if tx.isVerboseLoggingEnabled() {
		tx.logOp("docmap: PUT", slog.String("mapping", m.name), slog.Uint64("id", uint64(id)), slog.String("user_id", userID))
	}
	return nil
}

// Delete removes the entry for id and reports whether it existed.
func (m Mapping) Delete(tx *WriteTx, id DocumentID) (bool, error) {
	buck, err := tx.bucket(m)
	if err != nil {
		return false, err
	}
	key := id.Bytes()
	old, err := buck.Get(key)
	if err != nil {
		return false, storageErrID("delete", m, id, err)
	}
	if old == nil {
		if tx.isVerboseLoggingEnabled() {
			tx.logOp("docmap: DELETE.NOOP", slog.String("mapping", m.name), slog.Uint64("id", uint64(id)))
		}
		return false, nil
	}
	err = buck.Delete(key)
	if err != nil {
		return false, storageErrID("delete", m, id, err)
	}
	tx.markWritten()
	if tx.isVerboseLoggingEnabled() {
		tx.logOp("docmap: DELETE", slog.String("mapping", m.name), slog.Uint64("id", uint64(id)))
	}
	return true, nil
}

// Clear removes all entries.
func (m Mapping) Clear(tx *WriteTx) error {
	if _, err := tx.bucket(m); err != nil {
		return err
	}
	err := tx.stx.DeleteBucket(m.name)
	if err != nil && err != errBucketNotFound {
		return storageErr("clear", m, err)
	}
	_, err = tx.stx.CreateBucket(m.name)
	if err != nil {
		return storageErr("clear", m, err)
	}
	tx.markWritten()
	if tx.isVerboseLoggingEnabled() {
		tx.logOp("docmap: CLEAR", slog.String("mapping", m.name))
	}
	return nil
}

// Lookup returns the UserID associated with id.
func (m Mapping) Lookup(txh Txish, id DocumentID) (string, bool, error) {
	raw, err := m.LookupBytes(txh, id)
	if raw == nil || err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// LookupBytes returns the UserID associated with id without copying it, or nil
// if there is none. The returned slice must not be modified and is only valid
// until the transaction is closed.
func (m Mapping) LookupBytes(txh Txish, id DocumentID) ([]byte, error) {
	tx := txh.DBTx()
	buck, err := tx.bucket(m)
	if err != nil {
		return nil, err
	}
	raw, err := buck.Get(id.Bytes())
	if err != nil {
		return nil, storageErrID("lookup", m, id, err)
	}
	return raw, nil
}

// Len returns the number of entries.
func (m Mapping) Len(txh Txish) (int, error) {
	tx := txh.DBTx()
	buck, err := tx.bucket(m)
	if err != nil {
		return 0, err
	}
	s, err := buck.Stats()
	if err != nil {
		return 0, storageErr("len", m, err)
	}
	return s.KeyN, nil
}

// Iterate returns a cursor over all entries in ascending DocumentID order.
func (m Mapping) Iterate(txh Txish) *Cursor {
	return txh.DBTx().newCursor(m, nil)
}

// IterateFrom returns a cursor over the entries with DocumentID >= start,
// in ascending order.
func (m Mapping) IterateFrom(txh Txish, start DocumentID) *Cursor {
	return txh.DBTx().newCursor(m, start.Bytes())
}

// NextAvailableDocumentIDs returns count ascending document ids that are not
// in use in the snapshot seen by txh, reusing gaps left by deleted entries
// before extending past the largest id. See allocator for details.
//
// The ids are only guaranteed to be free within txh. Allocate and insert
// within the same write transaction (see AllocateAndPut) to avoid handing the
// same id to two writers.
func (m Mapping) NextAvailableDocumentIDs(txh Txish, count int) ([]DocumentID, error) {
	tx := txh.DBTx()
	if err := tx.check(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("docmap: invalid document id count %d", count)
	}
	if count == 0 {
		return []DocumentID{}, nil
	}

	a := newAllocator(count)
	c := m.Iterate(tx)
	for !a.full() && c.Next() {
		a.observe(c.ID())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	ids, err := a.finish()
	if err != nil {
		return nil, fmt.Errorf("docmap: %s: %w", m.name, err)
	}
	return ids, nil
}

// AllocateAndPut assigns fresh document ids to userIDs and stores the
// associations, all within tx. The i-th returned id belongs to userIDs[i].
func (m Mapping) AllocateAndPut(tx *WriteTx, userIDs ...string) ([]DocumentID, error) {
	for _, userID := range userIDs {
		if err := validateUserID(userID); err != nil {
			return nil, err
		}
	}
	ids, err := m.NextAvailableDocumentIDs(tx, len(userIDs))
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if err := m.Put(tx, id, userIDs[i]); err != nil {
			return nil, err
		}
	}
	if tx.isVerboseLoggingEnabled() && len(ids) > 0 {
		tx.logOp("docmap: ALLOCATE", slog.String("mapping", m.name), slog.Int("count", len(ids)), slog.Uint64("first", uint64(ids[0])), slog.Uint64("last", uint64(ids[len(ids)-1])))
	}
	return ids, nil
}
