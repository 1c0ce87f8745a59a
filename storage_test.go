package docmap

import (
	"errors"
	"testing"
)

func TestStorage_Buckets(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		ensure(db.Write(func(tx *WriteTx) error {
			stx := tx.stx
			a := must(stx.CreateBucket("a"))
			ab := must(stx.CreateBucket("ab"))
			ensure(a.Put(x("01"), []byte("a1")))
			ensure(a.Put(x("03"), []byte("a3")))
			ensure(ab.Put(x("02"), []byte("ab2")))
			ensure(ab.Put(x("00"), []byte{}))
			return nil
		}))

		ensure(db.Read(func(tx *Tx) error {
			if must(tx.stx.Bucket("missing")) != nil {
				t.Errorf("Bucket(missing) != nil")
			}
			a, ab := must(tx.stx.Bucket("a")), must(tx.stx.Bucket("ab"))

			// prefixes of one bucket don't leak into another
			deepEqual(t, scanAll(a.Cursor()), []string{"01=a1", "03=a3"})
			deepEqual(t, scanAll(ab.Cursor()), []string{"00=", "02=ab2"})
			deepEqual(t, must(a.Stats()).KeyN, 2)

			if v := must(ab.Get(x("00"))); v == nil || len(v) != 0 {
				t.Errorf("Get(empty value) = %#v, wanted empty non-nil", v)
			}
			if v := must(a.Get(x("02"))); v != nil {
				t.Errorf("Get(missing) = %x, wanted nil", v)
			}

			c := a.Cursor()
			k, v := c.Seek(x("02"))
			deepEqual(t, hexstr(k)+"="+string(v), "03=a3")
			k, _ = c.Next()
			if k != nil {
				t.Errorf("Next() past end = %x, wanted nil", k)
			}
			k, v = c.Last()
			deepEqual(t, hexstr(k)+"="+string(v), "03=a3")
			if k, _ := a.Cursor().Seek(x("04")); k != nil {
				t.Errorf("Seek past end = %x, wanted nil", k)
			}
			ensure(c.Err())
			return nil
		}))

		ensure(db.Write(func(tx *WriteTx) error {
			ensure(tx.stx.DeleteBucket("a"))
			if err := tx.stx.DeleteBucket("a"); err != errBucketNotFound {
				t.Errorf("DeleteBucket(missing) = %v, wanted errBucketNotFound", err)
			}
			return nil
		}))
		ensure(db.Read(func(tx *Tx) error {
			if must(tx.stx.Bucket("a")) != nil {
				t.Errorf("Bucket(a) still exists")
			}
			deepEqual(t, must(must(tx.stx.Bucket("ab")).Stats()).KeyN, 2)
			return nil
		}))
	})
}

func TestStorage_ReadOnlyTx(t *testing.T) {
	for _, backend := range []Backend{BackendMemory, BackendLevelDB} {
		t.Run(string(backend), func(t *testing.T) {
			if testing.Short() && backend != BackendMemory {
				t.Skip("on-disk backend")
			}
			db := setupBackend(t, basicSchema, backend)
			ensure(db.Read(func(tx *Tx) error {
				b := must(tx.stx.Bucket(userIDs.Name()))
				if err := b.Put(x("01"), []byte("x")); !errors.Is(err, errTxNotWritable) {
					t.Errorf("Put in read tx = %v, wanted errTxNotWritable", err)
				}
				if _, err := tx.stx.CreateBucket("z"); !errors.Is(err, errTxNotWritable) {
					t.Errorf("CreateBucket in read tx = %v, wanted errTxNotWritable", err)
				}
				return nil
			}))
		})
	}
}

func TestTx_BoltTx(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		ensure(db.Read(func(tx *Tx) error {
			isBolt := db.Bolt() != nil
			if (tx.BoltTx() != nil) != isBolt {
				t.Errorf("BoltTx() = %v, wanted non-nil only for Bolt", tx.BoltTx())
			}
			return nil
		}))
	})
}

func scanAll(c storageCursor) []string {
	var result []string
	for k, v := c.First(); k != nil; k, v = c.Next() {
		result = append(result, hexstr(k)+"="+string(v))
	}
	ensure(c.Err())
	return result
}

func TestStorage_BucketLookupFailure(t *testing.T) {
	db, stor := setupFaulty(t)
	putIDs(t, db, userIDs, 1, 3)
	stor.failBucket.Store(true)

	ops := map[string]func(tx *WriteTx) error{
		"put":    func(tx *WriteTx) error { return userIDs.Put(tx, 2, "x") },
		"delete": func(tx *WriteTx) error { _, err := userIDs.Delete(tx, 1); return err },
		"clear":  func(tx *WriteTx) error { return userIDs.Clear(tx) },
		"lookup": func(tx *WriteTx) error { _, _, err := userIDs.Lookup(tx, 1); return err },
		"len":    func(tx *WriteTx) error { _, err := userIDs.Len(tx); return err },
		"iterate": func(tx *WriteTx) error {
			_, err := AllEntries(userIDs.Iterate(tx))
			return err
		},
		"next": func(tx *WriteTx) error {
			_, err := userIDs.NextAvailableDocumentIDs(tx, 2)
			return err
		},
	}
	for name, op := range ops {
		err := db.Write(op)
		if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, errInjected) {
			t.Errorf("%s err = %v, wanted injected ErrStorageFailure", name, err)
		}
		if errors.Is(err, ErrUnknownMapping) {
			t.Errorf("%s err = %v, wanted no ErrUnknownMapping", name, err)
		}
	}

	stor.failBucket.Store(false)
	deepEqual(t, entries(t, db, userIDs), []Entry{{1, "u1"}, {3, "u3"}})
}

func TestStorage_LevelDBClosedUnderReader(t *testing.T) {
	if testing.Short() {
		t.Skip("on-disk backend")
	}
	db := must(Open(t.TempDir(), basicSchema, Options{Backend: BackendLevelDB, IsTesting: true}))
	putIDs(t, db, userIDs, 1)

	tx := must(db.BeginRead())
	ensure(db.stor.(*levelStorage).ldb.Close())

	_, _, err := userIDs.Lookup(tx, 1)
	if !errors.Is(err, ErrStorageFailure) {
		t.Errorf("Lookup after close = %v, wanted ErrStorageFailure", err)
	}
	if errors.Is(err, ErrUnknownMapping) {
		t.Errorf("Lookup after close = %v, wanted no ErrUnknownMapping", err)
	}
	_, err = userIDs.NextAvailableDocumentIDs(tx, 1)
	if !errors.Is(err, ErrStorageFailure) {
		t.Errorf("NextAvailableDocumentIDs after close = %v, wanted ErrStorageFailure", err)
	}
	tx.Close()
	db.Close() // already closed underneath
}

func TestStorage_MemCursorIgnoresLaterWrites(t *testing.T) {
	db := setupBackend(t, basicSchema, BackendMemory)
	putIDs(t, db, userIDs, 1, 3, 5)

	ensure(db.Write(func(tx *WriteTx) error {
		ensure(userIDs.Put(tx, 7, "u7")) // bucket now owned by this writer

		c := userIDs.Iterate(tx)
		if !c.Next() || c.ID() != 1 {
			t.Fatalf("first entry = %d, wanted 1", c.ID())
		}
		for _, id := range []DocumentID{0, 2, 4} {
			ensure(userIDs.Put(tx, id, "u"+id.String()))
		}
		must(userIDs.Delete(tx, 5))

		var rest []DocumentID
		for c.Next() {
			rest = append(rest, c.ID())
		}
		ensure(c.Err())
		deepEqual(t, rest, []DocumentID{3, 5, 7})

		got := must(AllEntries(userIDs.Iterate(tx)))
		deepEqual(t, len(got), 6)
		return nil
	}))
	deepEqual(t, nextIDs(t, db, userIDs, 2), []DocumentID{5, 6})
}
