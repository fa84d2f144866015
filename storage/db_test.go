package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectKeys(t *testing.T, it Iterator) []string {
	t.Helper()
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	return keys
}

func TestMemDBGetMissing(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIteratorHonoursPrefixAndStart(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	for _, key := range []string{"a/1", "a/2", "a/3", "b/1"} {
		require.NoError(t, db.Put([]byte(key), []byte("v")))
	}

	require.Equal(t, []string{"a/1", "a/2", "a/3"}, collectKeys(t, db.NewIterator([]byte("a/"), nil)))
	require.Equal(t, []string{"a/2", "a/3"}, collectKeys(t, db.NewIterator([]byte("a/"), []byte("a/2"))))
	// An exclusive cursor is expressed by appending a zero byte.
	require.Equal(t, []string{"a/3"}, collectKeys(t, db.NewIterator([]byte("a/"), []byte("a/2\x00"))))
}

func TestTransactionCommitAndDiscard(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k"), []byte("v1")))

	got, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
	tx.Discard()

	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("k"), []byte("v2")))
	require.NoError(t, tx.Commit())
	tx.Discard()

	got, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestTransactionIteratorSeesOwnWrites(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	require.NoError(t, db.Put([]byte("p/a"), []byte("1")))

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Discard()
	require.NoError(t, tx.Put([]byte("p/b"), []byte("2")))
	require.NoError(t, tx.Delete([]byte("p/a")))

	require.Equal(t, []string{"p/b"}, collectKeys(t, tx.NewIterator([]byte("p/"), nil)))
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	require.NoError(t, db1.Close())

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}
