package fundworker

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"portfolium/core/types"
)

type fakeChain struct {
	mu sync.Mutex

	assets  []FundAsset
	value   *big.Int
	supply  *big.Int
	prices  map[common.Address]*big.Int
	origins map[common.Address]types.PriceOrigin

	setPriceErr map[common.Address]error
	completeErr error

	updates   [][]Allocation
	setPrices map[common.Address]*big.Int
	completed []OrderEvent

	orders  chan OrderEvent
	watched chan []common.Address
	subErr  chan error
}

func newFakeChain(assets ...FundAsset) *fakeChain {
	return &fakeChain{
		assets:      assets,
		value:       new(big.Int),
		supply:      new(big.Int),
		prices:      make(map[common.Address]*big.Int),
		origins:     make(map[common.Address]types.PriceOrigin),
		setPriceErr: make(map[common.Address]error),
		setPrices:   make(map[common.Address]*big.Int),
		orders:      make(chan OrderEvent, 8),
		watched:     make(chan []common.Address, 1),
		subErr:      make(chan error, 1),
	}
}

func (c *fakeChain) FundAssets(context.Context) ([]FundAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FundAsset(nil), c.assets...), nil
}

func (c *fakeChain) FundValue(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.value), nil
}

func (c *fakeChain) TotalSupply(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.supply), nil
}

func (c *fakeChain) AssetPrice(_ context.Context, asset common.Address) (*big.Int, error) {
	price, ok := c.prices[asset]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(price), nil
}

func (c *fakeChain) PriceOrigin(_ context.Context, asset common.Address) (types.PriceOrigin, error) {
	return c.origins[asset], nil
}

func (c *fakeChain) UpdateMultipleAllocations(_ context.Context, allocations []Allocation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, allocations)
	return fmt.Sprintf("0x%02x", len(c.updates)), nil
}

func (c *fakeChain) SetPrice(_ context.Context, asset common.Address, price *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.setPriceErr[asset]; err != nil {
		return "", err
	}
	c.setPrices[asset] = new(big.Int).Set(price)
	return "0xprice", nil
}

func (c *fakeChain) CompleteBuyOrder(_ context.Context, token common.Address, index uint64) (string, error) {
	return c.complete(OrderEvent{Token: token, Side: OrderBuy, Index: index})
}

func (c *fakeChain) CompleteSellOrder(_ context.Context, token common.Address, index uint64) (string, error) {
	return c.complete(OrderEvent{Token: token, Side: OrderSell, Index: index})
}

func (c *fakeChain) complete(order OrderEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completeErr != nil {
		return "", c.completeErr
	}
	c.completed = append(c.completed, order)
	return "0xorder", nil
}

func (c *fakeChain) WatchOrders(ctx context.Context, tokens []common.Address, sink chan<- OrderEvent) (event.Subscription, error) {
	c.watched <- tokens
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case order := <-c.orders:
				select {
				case sink <- order:
				case <-quit:
					return nil
				}
			case err := <-c.subErr:
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}), nil
}

func (c *fakeChain) completedOrders() []OrderEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]OrderEvent(nil), c.completed...)
}

func testAddress(b byte) common.Address {
	var addr common.Address
	addr[19] = b
	return addr
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneEther)
}
