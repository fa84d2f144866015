package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Reader exposes point lookups and ordered prefix iteration.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// NewIterator walks keys sharing prefix in ascending byte order, starting
	// at start (inclusive) when it sorts after the prefix. Callers must
	// Release the iterator.
	NewIterator(prefix, start []byte) Iterator
}

// Writer mutates key/value pairs.
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Iterator walks a key range. Key and Value are only valid until the next call
// to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// Tx is an isolated read-write view. Reads observe the transaction's own
// writes. Nothing becomes visible to other readers until Commit.
type Tx interface {
	Reader
	Writer
	Commit() error
	Discard()
}

// Database is a generic interface for an ordered key-value store.
// This allows the ledger to use any backend (in-memory or persistent).
type Database interface {
	Reader
	Writer
	// Begin opens a transaction. Only one transaction may be open at a time;
	// Begin blocks until the previous one is committed or discarded.
	Begin() (Tx, error)
	Close() error
}

// LevelDB is an ordered key-value store backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	options := &opt.Options{
		OpenFilesCacheCapacity: 16,
		BlockCacheCapacity:     16 * opt.MiB,
		WriteBuffer:            8 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB returns a LevelDB instance held entirely in memory. It keeps the
// exact ordering and transaction semantics of the on-disk store, which makes it
// the backend of choice for tests.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		panic(fmt.Sprintf("open in-memory leveldb: %v", err))
	}
	return &LevelDB{db: db}
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	return value, translate(err)
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Delete removes a key. Deleting a missing key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// NewIterator implements Reader.
func (ldb *LevelDB) NewIterator(prefix, start []byte) Iterator {
	return ldb.db.NewIterator(keyRange(prefix, start), nil)
}

// Begin opens a goleveldb transaction.
func (ldb *LevelDB) Begin() (Tx, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("open transaction: %w", err)
	}
	return &levelTx{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

type levelTx struct {
	tr   *leveldb.Transaction
	done bool
}

func (t *levelTx) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	return value, translate(err)
}

func (t *levelTx) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *levelTx) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTx) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTx) NewIterator(prefix, start []byte) Iterator {
	return t.tr.NewIterator(keyRange(prefix, start), nil)
}

func (t *levelTx) Commit() error {
	if t.done {
		return errors.New("storage: transaction already closed")
	}
	t.done = true
	return t.tr.Commit()
}

// Discard is a no-op after Commit, so it is safe to defer.
func (t *levelTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Discard()
}

func keyRange(prefix, start []byte) *util.Range {
	rng := util.BytesPrefix(prefix)
	if len(prefix) == 0 {
		rng = &util.Range{}
	}
	if start != nil && bytes.Compare(start, rng.Start) > 0 {
		rng.Start = append([]byte(nil), start...)
	}
	return rng
}

func translate(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
