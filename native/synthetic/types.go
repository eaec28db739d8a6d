package synthetic

import (
	"fmt"
	"math/big"

	"portfolium/core/types"
)

// Details describes a synthetic token backed by an off-chain instrument.
type Details struct {
	CompanyName string
	CompanyID   string
	DepotID     string
	Name        string
	Symbol      string
	Decimals    uint8
	Owner       [20]byte
	Commission  *big.Int
}

// Metadata returns the descriptive subset of the details.
func (d *Details) Metadata() types.TokenMetadata {
	return types.TokenMetadata{Name: d.Name, Symbol: d.Symbol, Decimals: d.Decimals}
}

// OrderSide distinguishes the two order books of a token.
type OrderSide uint8

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

// String renders the side label.
func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// OrderStatus tracks the settlement of an order.
type OrderStatus uint8

const (
	OrderStatusOpen OrderStatus = iota
	OrderStatusCompleted
)

// StatusString renders the status label.
func (s OrderStatus) StatusString() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Order is one entry of a token's buy or sell book. Value is the amount paid
// for a buy order and the payout of a completed sell order.
type Order struct {
	Index       uint64
	Trader      [20]byte
	Amount      *big.Int
	Value       *big.Int
	Status      OrderStatus
	CreatedAt   uint64
	CompletedAt uint64
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	}
	if o.Value != nil {
		clone.Value = new(big.Int).Set(o.Value)
	}
	return &clone
}

// Pricer quotes order values for a token.
type Pricer interface {
	GetBuyingCost(asset [20]byte, amount *big.Int) (*big.Int, error)
	GetPayoutAmount(asset [20]byte, amount *big.Int) (*big.Int, error)
}

// Reserve receives buy order payments and funds sell order payouts.
type Reserve interface {
	Deposit(caller [20]byte, value *big.Int) error
	Withdraw(caller, recipient [20]byte, amount *big.Int) error
}

// SettlementHook is notified after an order completes. The treasury uses it to
// settle orders it placed on behalf of portfolios.
type SettlementHook interface {
	OrderSettled(token [20]byte, side OrderSide, order *Order) error
}
