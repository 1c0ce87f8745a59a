package docmap

import (
	"encoding/binary"
	"slices"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB has no buckets, so we emulate them with key prefixes:
//
//   - bucket marker: 'b' name → empty value
//   - bucket data: 'd' uvarint(len(name)) name key → value
//
// The length prefix keeps one bucket's keys from spilling into another's.
const (
	levelMarkerPrefix = 'b'
	levelDataPrefix   = 'd'
)

type levelStorage struct {
	ldb       *leveldb.DB
	readOpts  *opt.ReadOptions
	writeOpts *opt.WriteOptions
}

func openLevelStorage(path string, isTesting bool) (storage, error) {
	strictness := opt.DefaultStrict
	if isTesting {
		strictness = opt.StrictAll
	}
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
		Strict: strictness,
	}
	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &levelStorage{
		ldb:       ldb,
		readOpts:  &opt.ReadOptions{Strict: strictness},
		writeOpts: &opt.WriteOptions{Sync: !isTesting},
	}, nil
}

func (s *levelStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		// OpenTransaction blocks while another transaction is in flight.
		tr, err := s.ldb.OpenTransaction()
		if err != nil {
			return nil, err
		}
		return &levelTx{s: s, r: tr, tr: tr}, nil
	}
	snap, err := s.ldb.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelTx{s: s, r: snap, snap: snap}, nil
}

func (s *levelStorage) Close() error {
	return s.ldb.Close()
}

// levelReader is the read API shared by *leveldb.Transaction and *leveldb.Snapshot.
type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelTx struct {
	s     *levelStorage
	r     levelReader
	tr    *leveldb.Transaction // nil for read-only transactions
	snap  *leveldb.Snapshot    // nil for writable transactions
	iters []iterator.Iterator
}

func (tx *levelTx) Writable() bool { return tx.tr != nil }

func (tx *levelTx) Bucket(name string) (storageBucket, error) {
	_, err := tx.r.Get(levelMarkerKey(name), tx.s.readOpts)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return levelBucket{tx: tx, prefix: levelDataPrefixFor(name)}, nil
}

func (tx *levelTx) CreateBucket(name string) (storageBucket, error) {
	if tx.tr == nil {
		return nil, errTxNotWritable
	}
	err := tx.tr.Put(levelMarkerKey(name), nil, tx.s.writeOpts)
	if err != nil {
		return nil, err
	}
	return levelBucket{tx: tx, prefix: levelDataPrefixFor(name)}, nil
}

func (tx *levelTx) DeleteBucket(name string) error {
	if tx.tr == nil {
		return errTxNotWritable
	}
	marker := levelMarkerKey(name)
	_, err := tx.tr.Get(marker, tx.s.readOpts)
	if err == leveldb.ErrNotFound {
		return errBucketNotFound
	} else if err != nil {
		return err
	}

	// Collect first, the transaction's iterator must not observe its own deletes.
	var keys [][]byte
	it := tx.tr.NewIterator(util.BytesPrefix(levelDataPrefixFor(name)), tx.s.readOpts)
	for it.Next() {
		keys = append(keys, slices.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}

	for _, k := range keys {
		if err := tx.tr.Delete(k, tx.s.writeOpts); err != nil {
			return err
		}
	}
	return tx.tr.Delete(marker, tx.s.writeOpts)
}

func (tx *levelTx) releaseIters() {
	for _, it := range tx.iters {
		it.Release()
	}
	tx.iters = nil
}

func (tx *levelTx) Commit() error {
	if tx.tr == nil {
		return errTxNotWritable
	}
	tx.releaseIters()
	return tx.tr.Commit()
}

func (tx *levelTx) Rollback() error {
	tx.releaseIters()
	if tx.tr != nil {
		tx.tr.Discard()
	} else {
		tx.snap.Release()
	}
	return nil
}

func (tx *levelTx) Size() int64 { return 0 }

type levelBucket struct {
	tx     *levelTx
	prefix []byte
}

func (b levelBucket) key(k []byte) []byte {
	return append(slices.Clip(b.prefix), k...)
}

func (b levelBucket) Get(key []byte) ([]byte, error) {
	v, err := b.tx.r.Get(b.key(key), b.tx.s.readOpts)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (b levelBucket) Put(key, value []byte) error {
	if b.tx.tr == nil {
		return errTxNotWritable
	}
	return b.tx.tr.Put(b.key(key), value, b.tx.s.writeOpts)
}

func (b levelBucket) Delete(key []byte) error {
	if b.tx.tr == nil {
		return errTxNotWritable
	}
	return b.tx.tr.Delete(b.key(key), b.tx.s.writeOpts)
}

func (b levelBucket) Cursor() storageCursor {
	it := b.tx.r.NewIterator(util.BytesPrefix(b.prefix), b.tx.s.readOpts)
	b.tx.iters = append(b.tx.iters, it)
	return &levelCursor{it: it, prefix: b.prefix}
}

func (b levelBucket) Stats() (bucketStats, error) {
	var s bucketStats
	it := b.tx.r.NewIterator(util.BytesPrefix(b.prefix), b.tx.s.readOpts)
	defer it.Release()
	for it.Next() {
		s.KeyN++
		s.LeafInuse += int64(len(it.Key()) - len(b.prefix) + len(it.Value()))
	}
	s.LeafAlloc = s.LeafInuse
	return s, it.Error()
}

// levelCursor copies keys and values out of the iterator, because LevelDB
// reuses iterator buffers while callers expect them to live as long as
// the transaction.
type levelCursor struct {
	it     iterator.Iterator
	prefix []byte
}

func (c *levelCursor) current(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	k := c.it.Key()[len(c.prefix):]
	v := c.it.Value()
	if v == nil {
		v = []byte{}
	}
	return slices.Clone(k), slices.Clone(v)
}

func (c *levelCursor) First() ([]byte, []byte) { return c.current(c.it.First()) }

func (c *levelCursor) Last() ([]byte, []byte) { return c.current(c.it.Last()) }

func (c *levelCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.current(c.it.Seek(append(slices.Clip(c.prefix), seek...)))
}

func (c *levelCursor) Next() ([]byte, []byte) { return c.current(c.it.Next()) }

func (c *levelCursor) Err() error { return c.it.Error() }

func levelMarkerKey(name string) []byte {
	buf := make([]byte, 0, 1+len(name))
	buf = append(buf, levelMarkerPrefix)
	return append(buf, name...)
}

func levelDataPrefixFor(name string) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(name))
	buf = append(buf, levelDataPrefix)
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	return append(buf, name...)
}
