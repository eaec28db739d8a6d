package common

import (
	"fmt"
	"math/big"

	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
)

// Bank is the native currency surface engines move value through.
type Bank interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Pay moves amount of native currency from one account to another. A
// shortfall is reported as ErrInsufficientFunds.
func Pay(bank Bank, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative payment", coreerrors.ErrInvalidArgument)
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := bank.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", coreerrors.ErrInsufficientFunds, types.HexAddress(from), balance, amount)
	}
	return bank.Transfer(from, to, amount)
}

// Collect charges due out of the value attached to a payable call. Only due
// leaves the caller, so any excess is effectively refunded. Value below due
// fails with ErrInsufficientFunds.
func Collect(bank Bank, caller, engine [20]byte, value, due *big.Int) error {
	if value == nil {
		value = new(big.Int)
	}
	if value.Cmp(due) < 0 {
		return fmt.Errorf("%w: sent %s, required %s", coreerrors.ErrInsufficientFunds, value, due)
	}
	return Pay(bank, caller, engine, due)
}
