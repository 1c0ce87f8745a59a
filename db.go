package docmap

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const trackTxns = true

type Backend string

const (
	BackendBolt    Backend = "bolt"
	BackendMemory  Backend = "memory"
	BackendLevelDB Backend = "leveldb"
)

type DB struct {
	stor    storage
	bdb     *bbolt.DB
	schema  *Schema
	logger  *slog.Logger
	verbose bool

	lastSize           atomic.Int64
	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64

	txns     []*Tx
	txnsLock sync.Mutex
}

type Options struct {
	Backend   Backend // defaults to BackendBolt
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// Open opens the database at path using the configured backend and creates
// the buckets of every mapping in schema. Path is a file for Bolt,
// a directory for LevelDB, and is ignored for the in-memory backend.
func Open(path string, schema *Schema, opt Options) (*DB, error) {
	switch opt.Backend {
	case "", BackendBolt:
		bdb, err := openBolt(path, opt)
		if err != nil {
			return nil, fmt.Errorf("docmap: %w", err)
		}
		return openStorage(newBoltStorage(bdb), bdb, schema, opt)
	case BackendMemory:
		return openStorage(newMemStorage(), nil, schema, opt)
	case BackendLevelDB:
		stor, err := openLevelStorage(path, opt.IsTesting)
		if err != nil {
			return nil, fmt.Errorf("docmap: %w", err)
		}
		return openStorage(stor, nil, schema, opt)
	default:
		return nil, fmt.Errorf("docmap: unknown backend %q", opt.Backend)
	}
}

func openBolt(path string, opt Options) (*bbolt.DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	return bbolt.Open(path, 0666, bopt)
}

func openStorage(stor storage, bdb *bbolt.DB, schema *Schema, opt Options) (*DB, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema = &Schema{}
	}
	db := &DB{
		stor:    stor,
		bdb:     bdb,
		schema:  schema,
		logger:  logger,
		verbose: opt.Verbose,
	}

	err := db.Write(func(tx *WriteTx) error {
		for _, m := range schema.mappings {
			if _, err := tx.stx.CreateBucket(m.name); err != nil {
				return storageErr("create", m, err)
			}
		}
		return nil
	})
	if err != nil {
		stor.Close()
		return nil, err
	}
	return db, nil
}

// Bolt returns the underlying Bolt database, or nil for other backends.
func (db *DB) Bolt() *bbolt.DB {
	return db.bdb
}

func (db *DB) Schema() *Schema {
	return db.schema
}

// Size returns the database size observed by the last committed write
// transaction (always 0 for backends that don't report it).
func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

func (db *DB) Close() error {
	err := db.stor.Close()
	if err != nil {
		return fmt.Errorf("docmap: closing: %w", err)
	}
	return nil
}

func (db *DB) isVerboseLoggingEnabled() bool {
	return db.verbose
}

func (db *DB) addTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := slices.Index(db.txns, tx)
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

// DescribeOpenTxns lists the transactions that are still open, oldest first.
// A long-lived read transaction pins its snapshot, so this is the first thing
// to look at when the database file keeps growing.
func (db *DB) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		kind := "read"
		if tx.writable {
			kind = "write"
		}
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%s, open for %d ms\n", kind, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%s, open for %d ms:\n%s", kind, ms, tx.stack)
		}
	}

	return buf.String()
}
