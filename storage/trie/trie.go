package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"portfolium/storage"
)

// Trie wraps go-ethereum's Merkle-Patricia trie behind the small surface the
// state manager needs.
//
// Keys passed into Get/Update/Delete are expected to be hashed by the caller.
// After Commit the wrapper recreates the underlying trie at the new root so the
// instance stays usable.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store  storage.Database
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
	height uint64
}

// NewTrie creates a trie backed by the provided storage and optional root. A nil
// or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{
		store:  store,
		trieDB: trieDB,
		trie:   underlying,
		root:   rootHash,
	}, nil
}

// Get retrieves a value from the trie for the provided key. Missing keys
// yield a nil slice and no error.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or updates a value in the trie for the provided key. An
// empty value deletes the key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Delete removes the key from the trie.
func (t *Trie) Delete(key []byte) error {
	return t.trie.Delete(key)
}

// Hash returns the root hash of the trie reflecting all in-memory mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Height returns the number of commits applied on top of the genesis root.
func (t *Trie) Height() uint64 {
	return t.height
}

// SetHeight restores the commit counter when reopening a persisted trie.
func (t *Trie) SetHeight(height uint64) {
	t.height = height
}

// Reset discards any in-memory changes and reloads the trie at the provided
// committed root.
func (t *Trie) Reset(root common.Hash) error {
	underlying, err := gethtrie.New(gethtrie.TrieID(root), t.trieDB)
	if err != nil {
		return err
	}
	t.trie = underlying
	t.root = root
	return nil
}

// Snapshot captures the current in-memory trie, including uncommitted
// mutations. Restore rolls the trie back to the captured state.
func (t *Trie) Snapshot() *Snapshot {
	return &Snapshot{trie: t.trie.Copy(), root: t.root}
}

// Restore reinstates a previously captured snapshot. The snapshot must not be
// reused afterwards.
func (t *Trie) Restore(s *Snapshot) {
	if s == nil || s.trie == nil {
		return
	}
	t.trie = s.trie
	t.root = s.root
	s.trie = nil
}

// Snapshot is an opaque copy of the trie used for speculative execution.
type Snapshot struct {
	trie *gethtrie.Trie
	root common.Hash
}

// Commit persists the trie changes to the backing database and returns the new
// root hash.
func (t *Trie) Commit() (common.Hash, error) {
	parent := t.root
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, t.height+1, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie = underlying
	t.root = newRoot
	t.height++
	return newRoot, nil
}

// Store exposes the backing storage in case callers need to access it directly.
func (t *Trie) Store() storage.Database {
	return t.store
}
