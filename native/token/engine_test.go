package token

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
)

func TestCreateMintTransfer(t *testing.T) {
	st, err := state.NewMemoryManager()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	engine := NewEngine()
	engine.SetState(st)
	owner, holder := [20]byte{0x01}, [20]byte{0x02}

	first, err := engine.Create(owner, "USDX", "Dollar X", 6)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := engine.Create(owner, "USDY", "Dollar Y", 6)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first == second {
		t.Fatalf("tokens must get distinct addresses")
	}
	if err := engine.Mint(holder, first, holder, big.NewInt(1)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if err := engine.Mint(owner, first, owner, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Transfer(owner, first, holder, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bal, _ := engine.BalanceOf(first, holder)
	if bal.Int64() != 200 {
		t.Fatalf("expected 200, got %s", bal)
	}
	supply, _ := engine.TotalSupply(first)
	if supply.Int64() != 500 {
		t.Fatalf("expected supply 500, got %s", supply)
	}
	if _, err := engine.Details([20]byte{0xFF}); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	tokens, _ := engine.Tokens()
	if len(tokens) != 2 {
		t.Fatalf("expected two tokens, got %d", len(tokens))
	}
}
