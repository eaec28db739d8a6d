package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name   string
	Amount *big.Int
	Flag   bool
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestKVRoundTripAndDelete(t *testing.T) {
	m, err := NewMemoryManager()
	require.NoError(t, err)

	key := []byte("test/record")
	ok, err := m.KVGet(key, new(record))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.KVPut(key, record{Name: "alpha", Amount: big.NewInt(42), Flag: true}))
	var got record
	ok, err = m.KVGet(key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alpha", got.Name)
	require.Equal(t, int64(42), got.Amount.Int64())
	require.True(t, got.Flag)

	require.NoError(t, m.KVDelete(key))
	ok, err = m.KVGet(key, &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, m.KVPut(nil, record{}))
}

func TestKVAppendDeduplicates(t *testing.T) {
	m, err := NewMemoryManager()
	require.NoError(t, err)

	key := []byte("test/list")
	var list [][]byte
	require.NoError(t, m.KVGetList(key, &list))
	require.Empty(t, list)

	require.NoError(t, m.KVAppend(key, []byte("a")))
	require.NoError(t, m.KVAppend(key, []byte("b")))
	require.NoError(t, m.KVAppend(key, []byte("a")))
	require.NoError(t, m.KVGetList(key, &list))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)
}

func TestBankTransfer(t *testing.T) {
	m, err := NewMemoryManager()
	require.NoError(t, err)
	alice, bob := newTestAddress(0x0A), newTestAddress(0x0B)

	require.NoError(t, m.Credit(alice, big.NewInt(100)))
	require.NoError(t, m.Transfer(alice, bob, big.NewInt(40)))

	bal, err := m.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Int64())
	bal, err = m.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal.Int64())

	err = m.Transfer(bob, alice, big.NewInt(41))
	var insufficient *InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, int64(40), insufficient.Have.Int64())

	require.Error(t, m.Transfer(alice, bob, big.NewInt(-1)))
}

func TestSnapshotRevert(t *testing.T) {
	m, err := NewMemoryManager()
	require.NoError(t, err)
	alice := newTestAddress(0x0A)

	require.NoError(t, m.Credit(alice, big.NewInt(10)))
	root := m.Root()

	outer := m.Snapshot()
	require.NoError(t, m.Credit(alice, big.NewInt(5)))
	inner := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("test/k"), "v"))
	require.NoError(t, m.RevertToSnapshot(inner))

	ok, err := m.KVGet([]byte("test/k"), new(string))
	require.NoError(t, err)
	require.False(t, ok)
	bal, err := m.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(15), bal.Int64())

	require.NoError(t, m.RevertToSnapshot(outer))
	require.Equal(t, root, m.Root())
	require.Error(t, m.RevertToSnapshot(outer))
}

func TestCommitRejectsOpenSnapshots(t *testing.T) {
	m, err := NewMemoryManager()
	require.NoError(t, err)
	id := m.Snapshot()
	_, err = m.Commit()
	require.Error(t, err)
	m.DiscardSnapshot(id)
	require.NoError(t, m.Credit(newTestAddress(0x01), big.NewInt(1)))
	_, err = m.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.Height())
}
