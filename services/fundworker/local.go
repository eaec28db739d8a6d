package fundworker

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"

	"portfolium/core"
	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/native/fund"
	"portfolium/native/synthetic"
)

// LocalChain drives one portfolio of an in-process Platform. Engine prices
// are per smallest unit; LocalChain converts them to whole-token prices.
type LocalChain struct {
	platform  *core.Platform
	portfolio [20]byte
	app       [20]byte
	commit    bool
}

// LocalOption customises a LocalChain.
type LocalOption func(*LocalChain)

// WithCommit commits the platform state after every successful write.
func WithCommit(commit bool) LocalOption {
	return func(c *LocalChain) { c.commit = commit }
}

// NewLocalChain binds the worker to the portfolio owned by portfolio. The
// application account must manage that portfolio and be trusted by the
// oracle and the synthetic engine.
func NewLocalChain(platform *core.Platform, portfolio, application [20]byte, opts ...LocalOption) *LocalChain {
	chain := &LocalChain{platform: platform, portfolio: portfolio, app: application}
	for _, opt := range opts {
		if opt != nil {
			opt(chain)
		}
	}
	return chain
}

func (c *LocalChain) FundAssets(ctx context.Context) ([]FundAsset, error) {
	var out []FundAsset
	err := c.platform.View(func(e *core.Engines) error {
		assets, err := e.Fund.Assets(c.portfolio)
		if err != nil {
			return err
		}
		out = make([]FundAsset, 0, len(assets))
		for _, asset := range assets {
			out = append(out, FundAsset{
				Address:  common.Address(asset.Address),
				Name:     asset.Name,
				Symbol:   asset.Symbol,
				Decimals: asset.Decimals,
				Type:     asset.Type,
				PerShare: new(big.Int).Set(asset.PerShare),
				Weight:   asset.Weight,
			})
		}
		return nil
	})
	return out, err
}

func (c *LocalChain) FundValue(ctx context.Context) (*big.Int, error) {
	var value *big.Int
	err := c.platform.View(func(e *core.Engines) error {
		var err error
		value, err = e.Fund.PortfolioValue(c.portfolio)
		return err
	})
	return value, err
}

func (c *LocalChain) TotalSupply(ctx context.Context) (*big.Int, error) {
	var supply *big.Int
	err := c.platform.View(func(e *core.Engines) error {
		var err error
		supply, err = e.Fund.TotalShares(c.portfolio)
		return err
	})
	return supply, err
}

func (c *LocalChain) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	var price *big.Int
	err := c.platform.View(func(e *core.Engines) error {
		unitPrice, _, err := e.Oracle.GetPrice(asset)
		if err != nil {
			return err
		}
		decimals, err := assetDecimals(e, asset)
		if err != nil {
			return err
		}
		price = decimal.NewFromBigInt(unitPrice, int32(decimals)).BigInt()
		return nil
	})
	return price, err
}

func (c *LocalChain) PriceOrigin(ctx context.Context, asset common.Address) (types.PriceOrigin, error) {
	var origin types.PriceOrigin
	err := c.platform.View(func(e *core.Engines) error {
		var err error
		origin, err = e.Oracle.PriceOrigin(asset)
		return err
	})
	return origin, err
}

func (c *LocalChain) UpdateMultipleAllocations(ctx context.Context, allocations []Allocation) (string, error) {
	batch := make([]fund.Allocation, 0, len(allocations))
	for _, alloc := range allocations {
		batch = append(batch, fund.Allocation{Asset: alloc.Asset, PerShare: alloc.PerShare})
	}
	return c.apply(ctx, core.ModuleFund, func(e *core.Engines) error {
		return e.Fund.UpdateMultipleAllocations(c.app, c.portfolio, batch)
	})
}

func (c *LocalChain) SetPrice(ctx context.Context, asset common.Address, price *big.Int) (string, error) {
	return c.apply(ctx, core.ModuleOracle, func(e *core.Engines) error {
		decimals, err := assetDecimals(e, asset)
		if err != nil {
			return err
		}
		unitPrice, err := UnitPrice(price, decimals)
		if err != nil {
			return err
		}
		return e.Oracle.SetPrice(c.app, asset, unitPrice)
	})
}

func (c *LocalChain) CompleteBuyOrder(ctx context.Context, token common.Address, index uint64) (string, error) {
	return c.apply(ctx, core.ModuleSynthetic, func(e *core.Engines) error {
		return e.Synthetic.CompleteBuyOrder(c.app, token, index)
	})
}

func (c *LocalChain) CompleteSellOrder(ctx context.Context, token common.Address, index uint64) (string, error) {
	return c.apply(ctx, core.ModuleSynthetic, func(e *core.Engines) error {
		return e.Synthetic.CompleteSellOrder(c.app, token, index)
	})
}

// WatchOrders relays new order events of tokens from the platform bus.
func (c *LocalChain) WatchOrders(ctx context.Context, tokens []common.Address, sink chan<- OrderEvent) (event.Subscription, error) {
	watched := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		watched[token.Hex()] = struct{}{}
	}
	events, cancel := c.platform.Subscribe(0)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer cancel()
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return nil
				}
				order, ok := orderFromEvent(evt, watched)
				if !ok {
					continue
				}
				select {
				case sink <- order:
				case <-quit:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func orderFromEvent(evt *types.Event, watched map[string]struct{}) (OrderEvent, bool) {
	var side OrderSide
	switch evt.Type {
	case synthetic.EventTypeNewBuyOrder:
		side = OrderBuy
	case synthetic.EventTypeNewSellOrder:
		side = OrderSell
	default:
		return OrderEvent{}, false
	}
	token, err := types.ParseHexAddress(evt.Attributes["token"])
	if err != nil {
		return OrderEvent{}, false
	}
	if _, ok := watched[common.Address(token).Hex()]; !ok {
		return OrderEvent{}, false
	}
	index, err := strconv.ParseUint(evt.Attributes["orderIndex"], 10, 64)
	if err != nil {
		return OrderEvent{}, false
	}
	return OrderEvent{Token: common.Address(token), Side: side, Index: index}, true
}

func (c *LocalChain) apply(ctx context.Context, module string, fn func(*core.Engines) error) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := c.platform.Apply(module, fn); err != nil {
		return "", err
	}
	if c.commit {
		root, err := c.platform.Commit()
		if err != nil {
			return "", err
		}
		return root.Hex(), nil
	}
	return c.platform.Root().Hex(), nil
}

func assetDecimals(e *core.Engines, asset [20]byte) (uint8, error) {
	if asset == types.NativeAsset {
		return etherDecimals, nil
	}
	meta, err := e.Fund.AvailableAsset(asset)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// UnitPrice converts a wei price per whole token into the oracle's wei per
// smallest unit, rounding to the nearest wei. Prices that round to zero
// cannot be stored for an asset with that many decimals.
func UnitPrice(price *big.Int, decimals uint8) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", coreerrors.ErrInvalidArgument)
	}
	unit := decimal.NewFromBigInt(price, -int32(decimals)).Round(0)
	if unit.Sign() == 0 {
		return nil, fmt.Errorf("%w: price %s wei is below half a wei per unit of a %d-decimal asset",
			coreerrors.ErrInvalidArgument, price, decimals)
	}
	return unit.BigInt(), nil
}
