package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// It also hands out the trie database the state layer builds on, so the
// ledger can use any backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() // A way to gracefully shut down the database connection.
	TrieDB() *triedb.Database
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data:   make(map[string][]byte),
		trieDB: triedb.NewDatabase(rawdb.NewMemoryDatabase(), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// TrieDB returns the in-memory trie database.
func (db *MemDB) TrieDB() *triedb.Database { return db.trieDB }

// --- Persistent DB ---

const (
	levelDBCacheMB   = 64
	levelDBHandles   = 256
	metadataKeySpace = "meta/"
)

// LevelDB is a persistent key-value store using LevelDB. Trie nodes and
// ledger metadata share one database; metadata keys live under their own
// prefix so they never collide with node hashes.
type LevelDB struct {
	kv     ethdb.KeyValueStore
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "portfolium/db/", func(o *opt.Options) {
		o.BlockCacheCapacity = levelDBCacheMB / 2 * opt.MiB
		o.WriteBuffer = levelDBCacheMB / 4 * opt.MiB
		o.OpenFilesCacheCapacity = levelDBHandles
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.kv.Put(metadataKey(key), value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.kv.Get(metadataKey(key))
	if err != nil {
		if ok, _ := ldb.kv.Has(metadataKey(key)); !ok {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Close flushes the trie database and closes the connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.kv.Close()
}

// TrieDB returns the trie database backed by LevelDB.
func (ldb *LevelDB) TrieDB() *triedb.Database { return ldb.trieDB }

func metadataKey(key []byte) []byte {
	out := make([]byte, 0, len(metadataKeySpace)+len(key))
	out = append(out, metadataKeySpace...)
	return append(out, key...)
}
