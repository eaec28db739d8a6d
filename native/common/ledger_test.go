package common

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
)

func TestLedgerMintTransferBurn(t *testing.T) {
	st, err := state.NewMemoryManager()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	ledger := NewLedger(st, "test")
	token := [20]byte{1}
	alice, bob := [20]byte{0xA}, [20]byte{0xB}

	if err := ledger.Mint(token, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(token, alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Transfer(token, bob, alice, big.NewInt(31)); !errors.Is(err, coreerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := ledger.Burn(token, alice, big.NewInt(70)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := ledger.TotalSupply(token)
	if supply.Int64() != 30 {
		t.Fatalf("expected supply 30, got %s", supply)
	}
	bal, _ := ledger.BalanceOf(token, alice)
	if bal.Sign() != 0 {
		t.Fatalf("expected alice drained, got %s", bal)
	}
	if err := ledger.Mint(token, alice, big.NewInt(-1)); !errors.Is(err, coreerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestLedgerNamespacesAreIsolated(t *testing.T) {
	st, _ := state.NewMemoryManager()
	token, holder := [20]byte{2}, [20]byte{3}
	if err := NewLedger(st, "a").Mint(token, holder, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bal, err := NewLedger(st, "b").BalanceOf(token, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("namespace leak: %s", bal)
	}
}
