package docmap

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"
)

func allocate(used []DocumentID, count int) ([]DocumentID, error) {
	a := newAllocator(count)
	for _, id := range used {
		if a.full() {
			break
		}
		a.observe(id)
	}
	return a.finish()
}

func TestAllocator(t *testing.T) {
	tests := []struct {
		used     []DocumentID
		count    int
		expected []DocumentID
	}{
		{[]DocumentID{0, 1, 5}, 3, []DocumentID{2, 3, 4}},
		{[]DocumentID{0, 2}, 3, []DocumentID{1, 3, 4}},
		{nil, 2, []DocumentID{0, 1}},
		{nil, 1, []DocumentID{0}},
		{[]DocumentID{5}, 2, []DocumentID{6, 7}},
		{[]DocumentID{1, 3, 6}, 4, []DocumentID{2, 4, 5, 7}},
		{[]DocumentID{0, 1, 2}, 2, []DocumentID{3, 4}},
		{[]DocumentID{0, 10}, 3, []DocumentID{1, 2, 3}},
		{[]DocumentID{0, 10, 12}, 10, []DocumentID{1, 2, 3, 4, 5, 6, 7, 8, 9, 11}},
		{[]DocumentID{MaxDocumentID - 3, MaxDocumentID - 1}, 2, []DocumentID{MaxDocumentID - 2, MaxDocumentID}},
		{[]DocumentID{0, MaxDocumentID}, 3, []DocumentID{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%d", tt.used, tt.count), func(t *testing.T) {
			a, err := allocate(tt.used, tt.count)
			if err != nil {
				t.Fatalf("allocate(%v, %d) failed: %v", tt.used, tt.count, err)
			}
			deepEqual(t, a, tt.expected)
		})
	}
}

func TestAllocator_Exhausted(t *testing.T) {
	tests := []struct {
		used  []DocumentID
		count int
	}{
		{[]DocumentID{MaxDocumentID}, 1},
		{[]DocumentID{MaxDocumentID - 1}, 2},
		{[]DocumentID{MaxDocumentID - 2, MaxDocumentID - 1}, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%d", tt.used, tt.count), func(t *testing.T) {
			a, err := allocate(tt.used, tt.count)
			if !errors.Is(err, ErrIDSpaceExhausted) {
				t.Fatalf("allocate(%v, %d) = %v, %v; wanted ErrIDSpaceExhausted", tt.used, tt.count, a, err)
			}
		})
	}

	a := must(allocate([]DocumentID{MaxDocumentID - 1}, 1))
	deepEqual(t, a, []DocumentID{MaxDocumentID})
}

// allocateNaive walks the id space one id at a time.
func allocateNaive(used []DocumentID, count int) []DocumentID {
	inUse := make(map[DocumentID]bool)
	var max DocumentID
	for _, id := range used {
		inUse[id] = true
		max = id
	}
	var min DocumentID
	if len(used) > 0 {
		min = used[0]
	}
	var result []DocumentID
	for id := min; len(result) < count; id++ {
		if !inUse[id] && (id > max || len(used) == 0 || id > min) {
			result = append(result, id)
		}
	}
	return result
}

func TestAllocator_Random(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		used := make([]DocumentID, rnd.Intn(20))
		base := DocumentID(rnd.Intn(5))
		for j := range used {
			used[j] = base + DocumentID(rnd.Intn(60))
		}
		slices.Sort(used)
		used = slices.Compact(used)
		count := 1 + rnd.Intn(30)

		actual := must(allocate(used, count))
		expected := allocateNaive(used, count)
		if !slices.Equal(actual, expected) {
			t.Fatalf("allocate(%v, %d) = %v, wanted %v", used, count, actual, expected)
		}
		for k, id := range actual {
			if k > 0 && id <= actual[k-1] {
				t.Fatalf("allocate(%v, %d) = %v is not ascending", used, count, actual)
			}
			if _, found := slices.BinarySearch(used, id); found {
				t.Fatalf("allocate(%v, %d) = %v returns used id %d", used, count, actual, id)
			}
		}
	}
}

func TestNextAvailableDocumentIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		deepEqual(t, nextIDs(t, db, userIDs, 2), []DocumentID{0, 1})

		putIDs(t, db, userIDs, 0, 1, 5)
		deepEqual(t, nextIDs(t, db, userIDs, 3), []DocumentID{2, 3, 4})

		ensure(db.Write(func(tx *WriteTx) error { return userIDs.Clear(tx) }))
		putIDs(t, db, userIDs, 0, 2)
		deepEqual(t, nextIDs(t, db, userIDs, 3), []DocumentID{1, 3, 4})

		// allocation never mutates
		deepEqual(t, nextIDs(t, db, userIDs, 3), []DocumentID{1, 3, 4})
		deepEqual(t, entries(t, db, userIDs), []Entry{{0, "u0"}, {2, "u2"}})
	})
}

func TestNextAvailableDocumentIDs_Zero(t *testing.T) {
	db, stor := setupFaulty(t)
	putIDs(t, db, userIDs, 0, 2)

	// the cursor would fail if touched
	stor.failCursorAfter.Store(0)
	ids := nextIDs(t, db, userIDs, 0)
	if ids == nil || len(ids) != 0 {
		t.Fatalf("NextAvailableDocumentIDs(0) = %#v, wanted empty slice", ids)
	}
}

func TestNextAvailableDocumentIDs_NegativeCount(t *testing.T) {
	db := setup(t, basicSchema)
	err := db.Read(func(tx *Tx) error {
		_, err := userIDs.NextAvailableDocumentIDs(tx, -1)
		return err
	})
	if err == nil {
		t.Fatalf("NextAvailableDocumentIDs(-1) succeeded")
	}
}

func TestNextAvailableDocumentIDs_Exhausted(t *testing.T) {
	db := setup(t, basicSchema)
	putIDs(t, db, userIDs, MaxDocumentID)
	err := db.Read(func(tx *Tx) error {
		_, err := userIDs.NextAvailableDocumentIDs(tx, 1)
		return err
	})
	if !errors.Is(err, ErrIDSpaceExhausted) {
		t.Fatalf("err = %v, wanted ErrIDSpaceExhausted", err)
	}
}

func TestNextAvailableDocumentIDs_ScanFailure(t *testing.T) {
	db, stor := setupFaulty(t)
	putIDs(t, db, userIDs, 0, 1, 2, 10)

	stor.failCursorAfter.Store(2)
	var ids []DocumentID
	err := db.Read(func(tx *Tx) error {
		var err error
		ids, err = userIDs.NextAvailableDocumentIDs(tx, 3)
		return err
	})
	if !errors.Is(err, ErrStorageFailure) || !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, wanted injected storage failure", err)
	}
	if ids != nil {
		t.Fatalf("ids = %v, wanted none", ids)
	}

	// scanning stops early once the gaps satisfy the request
	stor.failCursorAfter.Store(4)
	deepEqual(t, nextIDs(t, db, userIDs, 3), []DocumentID{3, 4, 5})
}

func TestAllocateAndPut(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		putIDs(t, db, userIDs, 0, 3)

		var ids []DocumentID
		ensure(db.Write(func(tx *WriteTx) error {
			var err error
			ids, err = userIDs.AllocateAndPut(tx, "a", "b", "c")
			return err
		}))
		deepEqual(t, ids, []DocumentID{1, 2, 4})
		deepEqual(t, entries(t, db, userIDs), []Entry{{0, "u0"}, {1, "a"}, {2, "b"}, {3, "u3"}, {4, "c"}})

		err := db.Write(func(tx *WriteTx) error {
			_, err := userIDs.AllocateAndPut(tx, "d", "")
			return err
		})
		if !errors.Is(err, ErrInvalidUserID) {
			t.Fatalf("err = %v, wanted ErrInvalidUserID", err)
		}
		deepEqual(t, nextIDs(t, db, userIDs, 1), []DocumentID{5})
	})
}
