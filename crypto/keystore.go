package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrKeystorePassphrase reports a passphrase that does not decrypt the keystore.
var ErrKeystorePassphrase = errors.New("crypto: wrong keystore passphrase")

// ErrKeystoreAccount reports a keystore holding a different account than the
// caller expects.
var ErrKeystoreAccount = errors.New("crypto: keystore account mismatch")

// SaveToKeystore encrypts key into a v3 keystore at path using the standard
// scrypt parameters. The parent directory is created 0700 and the file is
// swapped in with a rename, so a reader never sees a partial keystore.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("crypto: keystore id: %w", err)
	}
	blob, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    common.Address(key.PubKey().Address().Account()),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// KeystoreAccount returns the account recorded in the keystore at path. The
// key itself stays encrypted.
func KeystoreAccount(path string) ([20]byte, error) {
	var account [20]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return account, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return account, fmt.Errorf("crypto: decode keystore %s: %w", path, err)
	}
	if !common.IsHexAddress(header.Address) {
		return account, fmt.Errorf("crypto: keystore %s has no address", path)
	}
	return common.HexToAddress(header.Address), nil
}

// LoadFromKeystore decrypts the keystore at path.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(raw, passphrase)
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, fmt.Errorf("%w: %s", ErrKeystorePassphrase, path)
	}
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// UnlockKeystore checks that the keystore at path belongs to want before the
// passphrase is requested, then decrypts it. A zero want skips the check.
func UnlockKeystore(path string, want [20]byte, passphrase func() (string, error)) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	if want != ([20]byte{}) {
		held, err := KeystoreAccount(path)
		if err != nil {
			return nil, err
		}
		if held != want {
			return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrKeystoreAccount, path,
				AccountAddress(held), AccountAddress(want))
		}
	}
	if passphrase == nil {
		return nil, errors.New("crypto: no passphrase source")
	}
	secret, err := passphrase()
	if err != nil {
		return nil, err
	}
	return LoadFromKeystore(path, secret)
}
