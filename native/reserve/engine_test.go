package reserve

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"portfolium/core/events"
	coreerrors "portfolium/core/errors"
	"portfolium/core/state"
	"portfolium/core/types"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *state.Manager, *events.Recorder, [20]byte) {
	t.Helper()
	st, err := state.NewMemoryManager()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	rec := events.NewRecorder()
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(rec)
	engine.SetAddress(types.DeriveAddress("portfolium/reserve"))
	owner := newTestAddress(0x0A)
	if err := engine.Init(owner); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec.Reset()
	return engine, st, rec, owner
}

func TestOwnerIsFirstAccessingAccount(t *testing.T) {
	engine, _, _, owner := newTestEngine(t)
	accounts, err := engine.Accounts()
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != owner {
		t.Fatalf("expected owner at index 0, got %x", accounts)
	}
	if err := engine.Init(owner); !errors.Is(err, coreerrors.ErrAlreadyExists) {
		t.Fatalf("expected re-init to fail, got %v", err)
	}
}

func TestDepositAndWithdraw(t *testing.T) {
	engine, st, rec, owner := newTestEngine(t)
	payer := newTestAddress(0x01)
	recipient := newTestAddress(0x02)
	if err := st.Credit(payer, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Deposit(payer, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.Withdraw(payer, recipient, big.NewInt(10)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("non accessing account must not withdraw, got %v", err)
	}
	if err := engine.Withdraw(owner, recipient, big.NewInt(101)); !errors.Is(err, coreerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := engine.Withdraw(owner, recipient, big.NewInt(60)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	pool, _ := engine.Balance()
	if pool.Int64() != 40 {
		t.Fatalf("expected pool 40, got %s", pool)
	}
	got, _ := st.Balance(recipient)
	if got.Int64() != 60 {
		t.Fatalf("expected recipient 60, got %s", got)
	}
	if n := len(rec.Filter(EventTypeWithdrawn)); n != 1 {
		t.Fatalf("expected one withdrawn event, got %d", n)
	}
}

func TestDepositWithoutFunds(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if err := engine.Deposit(newTestAddress(0x03), big.NewInt(1)); !errors.Is(err, coreerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestAccountManagement(t *testing.T) {
	engine, st, _, owner := newTestEngine(t)
	token := newTestAddress(0x0B)
	if err := engine.AddAccount(token, token); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized add, got %v", err)
	}
	if err := engine.AddAccount(owner, token); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.AddAccount(owner, token); !errors.Is(err, coreerrors.ErrAlreadyExists) {
		t.Fatalf("expected duplicate add to fail, got %v", err)
	}
	if err := st.Credit(engine.Address(), big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Withdraw(token, token, big.NewInt(5)); err != nil {
		t.Fatalf("token withdraw: %v", err)
	}
	if err := engine.RemoveAccount(owner, token); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.RemoveAccount(owner, token); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ok, _ := engine.IsAccessingAccount(token); ok {
		t.Fatalf("membership should be cleared")
	}
	count, _ := engine.AccessingAccountCount()
	if count != 2 {
		t.Fatalf("removal keeps list order, expected 2 entries, got %d", count)
	}
	if err := engine.AddAccount(owner, token); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	count, _ = engine.AccessingAccountCount()
	if count != 2 {
		t.Fatalf("re-adding must not duplicate the entry, got %d", count)
	}
}
