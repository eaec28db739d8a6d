package common

import (
	"fmt"
	"math/big"

	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
)

// Storage abstracts the subset of state manager functionality required by the
// balance ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Ledger tracks fungible balances and total supply for any number of tokens
// under a single key namespace. Token engines, mirrored and synthetic assets and
// portfolio shares all keep their balances here.
type Ledger struct {
	store  Storage
	prefix string
}

// NewLedger constructs a ledger storing its records under namespace.
func NewLedger(store Storage, namespace string) *Ledger {
	return &Ledger{store: store, prefix: namespace}
}

func (l *Ledger) balanceKey(token, account [20]byte) []byte {
	buf := make([]byte, 0, len(l.prefix)+len("/balance/")+40)
	buf = append(buf, l.prefix...)
	buf = append(buf, "/balance/"...)
	buf = append(buf, token[:]...)
	return append(buf, account[:]...)
}

func (l *Ledger) supplyKey(token [20]byte) []byte {
	buf := make([]byte, 0, len(l.prefix)+len("/supply/")+20)
	buf = append(buf, l.prefix...)
	buf = append(buf, "/supply/"...)
	return append(buf, token[:]...)
}

func (l *Ledger) read(key []byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("ledger not initialised")
	}
	value := new(big.Int)
	if _, err := l.store.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (l *Ledger) write(key []byte, value *big.Int) error {
	if value.Sign() == 0 {
		return l.store.KVDelete(key)
	}
	return l.store.KVPut(key, value)
}

// BalanceOf returns the balance of account in token.
func (l *Ledger) BalanceOf(token, account [20]byte) (*big.Int, error) {
	return l.read(l.balanceKey(token, account))
}

// TotalSupply returns the outstanding supply of token.
func (l *Ledger) TotalSupply(token [20]byte) (*big.Int, error) {
	return l.read(l.supplyKey(token))
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be non-negative", coreerrors.ErrInvalidArgument)
	}
	if !types.FitsUint256(amount) {
		return fmt.Errorf("%w: amount exceeds 256 bits", coreerrors.ErrInvalidArgument)
	}
	return nil
}

// Mint creates amount new units of token owned by to.
func (l *Ledger) Mint(token, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	supply, err := l.TotalSupply(token)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if !types.FitsUint256(supply) {
		return fmt.Errorf("%w: supply overflow", coreerrors.ErrInvalidArgument)
	}
	balance, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := l.write(l.balanceKey(token, to), balance.Add(balance, amount)); err != nil {
		return err
	}
	return l.write(l.supplyKey(token), supply)
}

// Burn destroys amount units of token held by from.
func (l *Ledger) Burn(token, from [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", coreerrors.ErrInsufficientFunds, balance, amount)
	}
	supply, err := l.TotalSupply(token)
	if err != nil {
		return err
	}
	if err := l.write(l.balanceKey(token, from), balance.Sub(balance, amount)); err != nil {
		return err
	}
	return l.write(l.supplyKey(token), supply.Sub(supply, amount))
}

// Transfer moves amount units of token between two accounts.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", coreerrors.ErrInsufficientFunds, fromBal, amount)
	}
	toBal, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := l.write(l.balanceKey(token, from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.write(l.balanceKey(token, to), toBal.Add(toBal, amount))
}
