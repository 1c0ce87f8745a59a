package docmap

import (
	"errors"
	"testing"
)

func TestCursor_MalformedKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		putIDs(t, db, userIDs, 1)
		ensure(db.Write(func(tx *WriteTx) error {
			return must(tx.stx.Bucket(userIDs.Name())).Put(x("ffffff"), []byte("bad"))
		}))

		var got []Entry
		err := db.Read(func(tx *Tx) error {
			var err error
			got, err = AllEntries(userIDs.Iterate(tx))
			return err
		})
		deepEqual(t, got, []Entry{{1, "u1"}})

		if !errors.Is(err, ErrStorageFailure) {
			t.Fatalf("err = %v, wanted ErrStorageFailure", err)
		}
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %v, wanted a *DataError inside", err)
		}
		deepEqual(t, de.Data, x("ffffff"))

		err = db.Read(func(tx *Tx) error {
			_, err := userIDs.NextAvailableDocumentIDs(tx, 5)
			return err
		})
		if !errors.Is(err, ErrStorageFailure) {
			t.Fatalf("NextAvailableDocumentIDs err = %v, wanted ErrStorageFailure", err)
		}
	})
}

func TestCursor_FailureMidScan(t *testing.T) {
	db, stor := setupFaulty(t)
	putIDs(t, db, userIDs, 1, 2, 3, 4)
	stor.failCursorAfter.Store(2)

	ensure(db.Read(func(tx *Tx) error {
		c := userIDs.Iterate(tx)
		got, err := AllEntries(c)
		deepEqual(t, got, []Entry{{1, "u1"}, {2, "u2"}})
		if !errors.Is(err, errInjected) || !errors.Is(err, ErrStorageFailure) {
			t.Errorf("err = %v, wanted injected storage failure", err)
		}
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "iterate" || se.Mapping != userIDs.Name() {
			t.Errorf("err = %#v, wanted iterate StorageError", err)
		}

		// a failed cursor never resumes
		if c.Next() {
			t.Errorf("Next() = true after a failure")
		}
		if c.Err() != err {
			t.Errorf("Err() = %v, wanted %v", c.Err(), err)
		}
		return nil
	}))
}

func TestCursor_All(t *testing.T) {
	db := setup(t, basicSchema)
	putIDs(t, db, userIDs, 1, 2, 3, 4)

	ensure(db.Read(func(tx *Tx) error {
		var ids []DocumentID
		for id := range userIDs.Iterate(tx).All() {
			if id == 3 {
				break
			}
			ids = append(ids, id)
		}
		deepEqual(t, ids, []DocumentID{1, 2})
		return nil
	}))
}

func TestCursor_UserIDBytes(t *testing.T) {
	db := setup(t, basicSchema)
	put(t, db, userIDs, Entry{1, "one"})

	ensure(db.Read(func(tx *Tx) error {
		c := userIDs.Iterate(tx)
		if !c.Next() {
			t.Fatalf("Next() = false")
		}
		deepEqual(t, string(c.UserIDBytes()), "one")
		deepEqual(t, c.Entry(), Entry{1, "one"})
		if c.Next() {
			t.Errorf("Next() = true, wanted end")
		}
		if c.UserIDBytes() != nil {
			t.Errorf("UserIDBytes() = %q after end, wanted nil", c.UserIDBytes())
		}
		return c.Err()
	}))
}
