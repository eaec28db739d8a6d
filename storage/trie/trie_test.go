package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"portfolium/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(1), tr.Height())

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieSnapshotRestoreDiscardsMutations(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	kept := crypto.Keccak256([]byte("kept"))
	dropped := crypto.Keccak256([]byte("dropped"))
	require.NoError(t, tr.Update(kept, []byte{1}))
	before := tr.Hash()

	snap := tr.Snapshot()
	require.NoError(t, tr.Update(dropped, []byte{2}))
	require.NoError(t, tr.Update(kept, []byte{3}))
	require.NotEqual(t, before, tr.Hash())

	tr.Restore(snap)
	require.Equal(t, before, tr.Hash())

	got, err := tr.Get(kept)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	got, err = tr.Get(dropped)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTrieDeleteRemovesKey(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	key := crypto.Keccak256([]byte("k"))
	require.NoError(t, tr.Update(key, []byte("v")))
	require.NoError(t, tr.Delete(key))
	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Empty(t, got)
}
