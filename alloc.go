package docmap

// allocator picks free document ids while being fed the ids in use, in
// ascending order, in a single pass.
//
// Every gap between two consecutive ids in use is filled first, smallest id
// first. Once the ids in use are exhausted, the result is extended with
// consecutive ids past the largest one (or from 0 when there were none).
// For ids in use {0, 2} and count 3 this yields [1, 3, 4].
//
// The result never holds more than count ids; the key space itself is never
// materialized.
type allocator struct {
	count   int
	result  []DocumentID
	prev    DocumentID
	hasPrev bool
}

func newAllocator(count int) *allocator {
	return &allocator{
		count:  count,
		result: make([]DocumentID, 0, count),
	}
}

// full reports whether no more ids are needed, in which case the remaining
// ids in use cannot change the result.
func (a *allocator) full() bool {
	return len(a.result) >= a.count
}

func (a *allocator) observe(cur DocumentID) {
	if a.hasPrev && cur > a.prev && cur-a.prev > 1 {
		for id := a.prev + 1; id < cur && !a.full(); id++ {
			a.result = append(a.result, id)
		}
	}
	a.prev, a.hasPrev = cur, true
}

func (a *allocator) finish() ([]DocumentID, error) {
	remaining := a.count - len(a.result)
	if remaining <= 0 {
		return a.result, nil
	}

	var start DocumentID
	if a.hasPrev {
		if a.prev == MaxDocumentID {
			return nil, ErrIDSpaceExhausted
		}
		start = a.prev + 1
	}
	if uint64(remaining-1) > uint64(MaxDocumentID-start) {
		return nil, ErrIDSpaceExhausted
	}
	for i := 0; i < remaining; i++ {
		a.result = append(a.result, start+DocumentID(i))
	}
	return a.result, nil
}
