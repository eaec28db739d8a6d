package fundworker

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"portfolium/core/types"
)

// FundAsset is one asset of the managed fund with its current allocation.
type FundAsset struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
	Type     types.AssetType
	PerShare *big.Int
	Weight   uint64
}

// Allocation is a per-share amount to set for Asset.
type Allocation struct {
	Asset    common.Address
	PerShare *big.Int
}

// OrderSide distinguishes synthetic buy and sell orders.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderEvent announces a new synthetic order awaiting settlement.
type OrderEvent struct {
	Token common.Address
	Side  OrderSide
	Index uint64
}

// Chain is the fund surface the worker reads and writes. Prices are quoted
// in wei per whole token. Writes are signed by the application key and
// return a transaction reference.
type Chain interface {
	FundAssets(ctx context.Context) ([]FundAsset, error)
	FundValue(ctx context.Context) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)
	PriceOrigin(ctx context.Context, asset common.Address) (types.PriceOrigin, error)
	UpdateMultipleAllocations(ctx context.Context, allocations []Allocation) (string, error)
	SetPrice(ctx context.Context, asset common.Address, price *big.Int) (string, error)
	CompleteBuyOrder(ctx context.Context, token common.Address, index uint64) (string, error)
	CompleteSellOrder(ctx context.Context, token common.Address, index uint64) (string, error)
	WatchOrders(ctx context.Context, tokens []common.Address, sink chan<- OrderEvent) (event.Subscription, error)
}
