package docmap

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
)

var (
	errStorageClosed = errors.New("storage closed")
	errTxNotWritable = errors.New("tx not writable")
)

// memStorage keeps buckets as sorted slices. Published buckets are never
// modified: the writer copies a bucket the first time it changes it, and
// commit publishes the writer's bucket map as a whole. Readers therefore
// share the published map as their snapshot without copying anything.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

// newMemStorage returns a transient in-memory storage, used for tests
// and for Options.Backend == BackendMemory.
func newMemStorage() storage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStorageClosed
	}
	if !writable {
		return &memTx{base: s, buckets: s.buckets}, nil
	}

	for s.writer && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, errStorageClosed
	}
	s.writer = true
	return &memTx{
		base:     s,
		writable: true,
		buckets:  maps.Clone(s.buckets),
		owned:    make(map[string]bool),
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	buckets  map[string]*memBucket
	owned    map[string]bool // buckets already copied by this writer
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Bucket(name string) (storageBucket, error) {
	if tx.buckets[name] == nil {
		return nil, nil
	}
	return memBucketHandle{tx: tx, name: name}, nil
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if !tx.writable {
		return nil, errTxNotWritable
	}
	if tx.buckets[name] == nil {
		tx.buckets[name] = &memBucket{}
		tx.owned[name] = true
	}
	return memBucketHandle{tx: tx, name: name}, nil
}

func (tx *memTx) DeleteBucket(name string) error {
	if !tx.writable {
		return errTxNotWritable
	}
	if tx.buckets[name] == nil {
		return errBucketNotFound
	}
	delete(tx.buckets, name)
	delete(tx.owned, name)
	return nil
}

// mutable returns a bucket this writer may modify in place.
func (tx *memTx) mutable(name string) *memBucket {
	b := tx.buckets[name]
	if b == nil || tx.owned[name] {
		return b
	}
	b = &memBucket{items: slices.Clone(b.items)}
	tx.buckets[name] = b
	tx.owned[name] = true
	return b
}

func (tx *memTx) Commit() error {
	if !tx.writable {
		return errTxNotWritable
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.closed {
		return nil
	}
	if tx.base.closed {
		tx.closeLocked()
		return errStorageClosed
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

func (tx *memTx) Size() int64 { return 0 }

type memBucket struct {
	items []memKV // sorted by key
}

// memKV is immutable once stored; updates replace the whole pair.
type memKV struct {
	key   []byte
	value []byte
}

func (b *memBucket) find(key []byte) (idx int, ok bool) {
	i := sort.Search(len(b.items), func(i int) bool {
		return bytes.Compare(b.items[i].key, key) >= 0
	})
	return i, i < len(b.items) && bytes.Equal(b.items[i].key, key)
}

type memBucketHandle struct {
	tx   *memTx
	name string
}

func (h memBucketHandle) bucket() *memBucket {
	if b := h.tx.buckets[h.name]; b != nil {
		return b
	}
	// deleted within this transaction
	return &memBucket{}
}

func (h memBucketHandle) Get(key []byte) ([]byte, error) {
	b := h.bucket()
	i, ok := b.find(key)
	if !ok {
		return nil, nil
	}
	return b.items[i].value, nil
}

func (h memBucketHandle) Put(key, value []byte) error {
	if !h.tx.writable {
		return errTxNotWritable
	}
	b := h.tx.mutable(h.name)
	if b == nil {
		return errBucketNotFound
	}
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	if kv.value == nil {
		kv.value = []byte{}
	}

	i, ok := b.find(key)
	if ok {
		b.items[i] = kv
		return nil
	}
	b.items = slices.Insert(b.items, i, kv)
	return nil
}

func (h memBucketHandle) Delete(key []byte) error {
	if !h.tx.writable {
		return errTxNotWritable
	}
	b := h.tx.buckets[h.name]
	if b == nil {
		return errBucketNotFound
	}
	if _, ok := b.find(key); !ok {
		return nil
	}
	b = h.tx.mutable(h.name)
	i, _ := b.find(key)
	b.items = slices.Delete(b.items, i, i+1)
	return nil
}

// Cursor iterates over the bucket as of the moment the cursor was created.
func (h memBucketHandle) Cursor() storageCursor {
	// The cursor shares items, so the writer's next change must copy them.
	delete(h.tx.owned, h.name)
	return &memCursor{items: h.bucket().items, pos: -1}
}

func (h memBucketHandle) Stats() (bucketStats, error) {
	items := h.bucket().items
	var inuse int64
	for _, kv := range items {
		inuse += int64(len(kv.key) + len(kv.value))
	}
	return bucketStats{
		KeyN:      len(items),
		LeafInuse: inuse,
		LeafAlloc: inuse,
	}, nil
}

type memCursor struct {
	items []memKV
	pos   int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	c.pos = pos
	if pos < 0 || pos >= len(c.items) {
		return nil, nil
	}
	kv := c.items[pos]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }

func (c *memCursor) Last() ([]byte, []byte) { return c.at(len(c.items) - 1) }

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i := sort.Search(len(c.items), func(i int) bool {
		return bytes.Compare(c.items[i].key, seek) >= 0
	})
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos >= len(c.items) {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Err() error { return nil }
