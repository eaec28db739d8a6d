package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	rendered := addr.String()
	if !strings.HasPrefix(rendered, "pfm1") {
		t.Fatalf("unexpected rendering %q", rendered)
	}
	parsed, err := ParseAccount(rendered)
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if parsed != addr.Account() {
		t.Fatalf("bech32 round trip mismatch")
	}
	hexParsed, err := ParseAccount("0x" + strings.Repeat("ab", 20))
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if hexParsed[0] != 0xab || hexParsed[19] != 0xab {
		t.Fatalf("unexpected hex parse %x", hexParsed)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	var account [20]byte
	account[19] = 7
	foreign := NewAddress("nhb", account[:]).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
	if _, err := ParseAccount("0x1234"); err == nil {
		t.Fatalf("expected short hex to be rejected")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "application.json")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.PubKey().Address().Account() != key.PubKey().Address().Account() {
		t.Fatalf("keystore round trip changed the key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); !errors.Is(err, ErrKeystorePassphrase) {
		t.Fatalf("expected wrong passphrase error, got %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat keystore: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("keystore mode %v, want 0600", info.Mode().Perm())
	}
	account, err := KeystoreAccount(path)
	if err != nil {
		t.Fatalf("keystore account: %v", err)
	}
	if account != key.PubKey().Address().Account() {
		t.Fatalf("keystore header records %x", account)
	}
}

func TestUnlockKeystoreChecksAccountFirst(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "application.keystore")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	asked := 0
	passphrase := func() (string, error) {
		asked++
		return "secret", nil
	}
	var other [20]byte
	other[19] = 0x01
	if _, err := UnlockKeystore(path, other, passphrase); !errors.Is(err, ErrKeystoreAccount) {
		t.Fatalf("expected account mismatch, got %v", err)
	}
	if asked != 0 {
		t.Fatalf("passphrase requested for a foreign keystore")
	}

	unlocked, err := UnlockKeystore(path, key.PubKey().Address().Account(), passphrase)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if asked != 1 || unlocked.PubKey().Address().Account() != key.PubKey().Address().Account() {
		t.Fatalf("unexpected unlock result")
	}
}
