package state

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"portfolium/storage"
	"portfolium/storage/trie"
)

// Manager exposes the ledger state to the native engines: an RLP encoded
// key/value namespace and the native currency bank, both stored in one trie.
//
// Manager is not safe for concurrent use; the platform serializes access.
type Manager struct {
	trie      *trie.Trie
	snapshots []*trie.Snapshot
}

// NewManager wraps an existing trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// NewMemoryManager builds a manager over a fresh in-memory database.
func NewMemoryManager() (*Manager, error) {
	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	if err != nil {
		return nil, err
	}
	return NewManager(tr), nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores value under key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key. Deleting a missing key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList decodes the list stored under key into out, which must point to a
// slice. Missing keys reset the destination to an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}

var balancePrefix = []byte("bank/balance/")

func balanceKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(addr))
	buf = append(buf, balancePrefix...)
	return append(buf, addr[:]...)
}

// Balance returns the native currency balance of addr.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := m.KVGet(balanceKey(addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (m *Manager) setBalance(addr [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return m.KVDelete(balanceKey(addr))
	}
	return m.KVPut(balanceKey(addr), amount)
}

// Credit mints native currency into addr. Only genesis allocation and tests
// create currency; engines move it with Transfer.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: credit amount must be non-negative")
	}
	balance, err := m.Balance(addr)
	if err != nil {
		return err
	}
	return m.setBalance(addr, balance.Add(balance, amount))
}

// Transfer moves native currency between two accounts.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := m.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Account: from, Have: fromBal, Want: new(big.Int).Set(amount)}
	}
	toBal, err := m.Balance(to)
	if err != nil {
		return err
	}
	if err := m.setBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.setBalance(to, toBal.Add(toBal, amount))
}

// InsufficientBalanceError reports a transfer that exceeds the sender's
// balance.
type InsufficientBalanceError struct {
	Account [20]byte
	Have    *big.Int
	Want    *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("bank: insufficient balance for %s: have %s want %s",
		common.Address(e.Account).Hex(), e.Have, e.Want)
}

// Snapshot records the current state and returns an identifier for
// RevertToSnapshot. Snapshots nest.
func (m *Manager) Snapshot() int {
	m.snapshots = append(m.snapshots, m.trie.Snapshot())
	return len(m.snapshots) - 1
}

// RevertToSnapshot discards every mutation made after the snapshot was taken,
// along with any snapshots taken later.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return fmt.Errorf("state: unknown snapshot %d", id)
	}
	m.trie.Restore(m.snapshots[id])
	m.snapshots = m.snapshots[:id]
	return nil
}

// DiscardSnapshot forgets the snapshot and every later one, keeping the
// current state.
func (m *Manager) DiscardSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

// Root returns the hash of the current, possibly uncommitted, state.
func (m *Manager) Root() common.Hash {
	return m.trie.Hash()
}

// Commit flushes the state to the backing database.
func (m *Manager) Commit() (common.Hash, error) {
	if len(m.snapshots) > 0 {
		return common.Hash{}, fmt.Errorf("state: cannot commit with %d open snapshots", len(m.snapshots))
	}
	return m.trie.Commit()
}

// Height returns the number of commits applied so far.
func (m *Manager) Height() uint64 {
	return m.trie.Height()
}
