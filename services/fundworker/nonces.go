package fundworker

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"
)

var bucketNonces = []byte("nonces")

// NonceStore persists the next nonce of each sending account so restarts do
// not reuse nonces of transactions still pending in the mempool.
type NonceStore struct {
	db *bolt.DB
}

// OpenNonceStore opens (and migrates) the BoltDB file at path.
func OpenNonceStore(path string) (*NonceStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open nonce store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNonces)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate nonce store: %w", err)
	}
	return &NonceStore{db: db}, nil
}

// Close releases the underlying database.
func (s *NonceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Next returns the stored next nonce of account.
func (s *NonceStore) Next(account common.Address) (uint64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, nil
	}
	var (
		next  uint64
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketNonces).Get(account.Bytes())
		if len(raw) != 8 {
			return nil
		}
		next = binary.BigEndian.Uint64(raw)
		found = true
		return nil
	})
	return next, found, err
}

// Put records next as the nonce the account uses for its next transaction.
func (s *NonceStore) Put(account common.Address, next uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNonces).Put(account.Bytes(), buf[:])
	})
}
