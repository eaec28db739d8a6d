package mirrored

import (
	"math/big"

	"portfolium/core/types"
)

// Details describes a mirrored token. Commission is charged once per mint and
// once per burn.
type Details struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Owner      [20]byte
	Commission *big.Int
}

// Metadata returns the descriptive subset of the details.
func (d *Details) Metadata() types.TokenMetadata {
	return types.TokenMetadata{Name: d.Name, Symbol: d.Symbol, Decimals: d.Decimals}
}

// Pricer quotes mint and burn amounts for a token.
type Pricer interface {
	GetBuyingCost(asset [20]byte, amount *big.Int) (*big.Int, error)
	GetPayoutAmount(asset [20]byte, amount *big.Int) (*big.Int, error)
}

// Reserve receives mint payments and funds burn payouts.
type Reserve interface {
	Deposit(caller [20]byte, value *big.Int) error
	Withdraw(caller, recipient [20]byte, amount *big.Int) error
}
