package fundworker

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"portfolium/core/types"
)

// EVMBackend defines the subset of the Ethereum RPC the chain adapter reads
// through. *ethclient.Client satisfies it.
type EVMBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// EVMAddresses locates the deployed contracts.
type EVMAddresses struct {
	Fund   common.Address
	Oracle common.Address
}

// EVMGas holds the fallback gas limit of each write.
type EVMGas struct {
	Rebalance uint64
	PricePush uint64
	Orders    uint64
}

// EVMChain implements Chain against deployed contracts.
type EVMChain struct {
	backend EVMBackend
	sender  *Sender
	addrs   EVMAddresses
	gas     EVMGas
}

// NewEVMChain binds the contracts at addrs. Writes go through sender.
func NewEVMChain(backend EVMBackend, sender *Sender, addrs EVMAddresses, gas EVMGas) *EVMChain {
	if gas.Rebalance == 0 {
		gas.Rebalance = defaultRebalanceGas
	}
	if gas.PricePush == 0 {
		gas.PricePush = defaultPricePushGas
	}
	if gas.Orders == 0 {
		gas.Orders = defaultOrderGas
	}
	return &EVMChain{backend: backend, sender: sender, addrs: addrs, gas: gas}
}

func (c *EVMChain) call(ctx context.Context, contract *abi.ABI, to common.Address, out interface{}, method string, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	if c.sender != nil {
		msg.From = c.sender.From()
	}
	res, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := contract.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

func (c *EVMChain) FundAssets(ctx context.Context) ([]FundAsset, error) {
	var count *big.Int
	if err := c.call(ctx, &fundABI, c.addrs.Fund, &count, "assetCount"); err != nil {
		return nil, err
	}
	if !count.IsUint64() {
		return nil, fmt.Errorf("asset count %s out of range", count)
	}
	out := make([]FundAsset, 0, count.Uint64())
	for i := uint64(0); i < count.Uint64(); i++ {
		var addr common.Address
		if err := c.call(ctx, &fundABI, c.addrs.Fund, &addr, "assetAddresses", new(big.Int).SetUint64(i)); err != nil {
			return nil, err
		}
		var tuple fundAssetTuple
		if err := c.call(ctx, &fundABI, c.addrs.Fund, &tuple, "assets", addr); err != nil {
			return nil, err
		}
		assetType := types.AssetType(tuple.AssetType)
		if !assetType.Valid() {
			return nil, fmt.Errorf("asset %s has unknown type %d", addr.Hex(), tuple.AssetType)
		}
		if !tuple.Weight.IsUint64() {
			return nil, fmt.Errorf("asset %s weight %s out of range", addr.Hex(), tuple.Weight)
		}
		out = append(out, FundAsset{
			Address:  tuple.AssetAddress,
			Name:     tuple.Name,
			Symbol:   tuple.Symbol,
			Decimals: tuple.Decimals,
			Type:     assetType,
			PerShare: tuple.PerShareAmount,
			Weight:   tuple.Weight.Uint64(),
		})
	}
	return out, nil
}

func (c *EVMChain) FundValue(ctx context.Context) (*big.Int, error) {
	var value *big.Int
	err := c.call(ctx, &fundABI, c.addrs.Fund, &value, "getFundValue")
	return value, err
}

func (c *EVMChain) TotalSupply(ctx context.Context) (*big.Int, error) {
	var supply *big.Int
	err := c.call(ctx, &fundABI, c.addrs.Fund, &supply, "totalSupply")
	return supply, err
}

func (c *EVMChain) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	var price priceTuple
	if err := c.call(ctx, &oracleABI, c.addrs.Oracle, &price, "getPrice", asset); err != nil {
		return nil, err
	}
	return price.Price, nil
}

func (c *EVMChain) PriceOrigin(ctx context.Context, asset common.Address) (types.PriceOrigin, error) {
	var origin uint8
	if err := c.call(ctx, &oracleABI, c.addrs.Oracle, &origin, "assetPriceOrigin", asset); err != nil {
		return 0, err
	}
	return types.PriceOrigin(origin), nil
}

func (c *EVMChain) write(ctx context.Context, contract *abi.ABI, to common.Address, gas uint64, method string, args ...interface{}) (string, error) {
	if c.sender == nil {
		return "", fmt.Errorf("%s: no sender configured", method)
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}
	hash, err := c.sender.Send(ctx, Call{Method: method, To: to, Data: data, DefaultGas: gas})
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (c *EVMChain) UpdateMultipleAllocations(ctx context.Context, allocations []Allocation) (string, error) {
	batch := make([]allocationTuple, 0, len(allocations))
	for _, alloc := range allocations {
		batch = append(batch, allocationTuple{AssetAddress: alloc.Asset, PerShareAmount: alloc.PerShare})
	}
	return c.write(ctx, &fundABI, c.addrs.Fund, c.gas.Rebalance, "updateMultipleAllocations", batch)
}

func (c *EVMChain) SetPrice(ctx context.Context, asset common.Address, price *big.Int) (string, error) {
	return c.write(ctx, &oracleABI, c.addrs.Oracle, c.gas.PricePush, "setPrice", asset, price)
}

func (c *EVMChain) CompleteBuyOrder(ctx context.Context, token common.Address, index uint64) (string, error) {
	return c.write(ctx, &syntheticABI, token, c.gas.Orders, "buyOrderCompleted", new(big.Int).SetUint64(index))
}

func (c *EVMChain) CompleteSellOrder(ctx context.Context, token common.Address, index uint64) (string, error) {
	return c.write(ctx, &syntheticABI, token, c.gas.Orders, "sellOrderCompleted", new(big.Int).SetUint64(index))
}

// WatchOrders subscribes to NewBuyOrder and NewSellOrder logs of tokens.
func (c *EVMChain) WatchOrders(ctx context.Context, tokens []common.Address, sink chan<- OrderEvent) (event.Subscription, error) {
	buyID := syntheticABI.Events["NewBuyOrder"].ID
	sellID := syntheticABI.Events["NewSellOrder"].ID
	query := ethereum.FilterQuery{
		Addresses: append([]common.Address(nil), tokens...),
		Topics:    [][]common.Hash{{buyID, sellID}},
	}
	logs := make(chan gethtypes.Log, 64)
	sub, err := c.backend.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe orders: %w", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case entry := <-logs:
				order, err := decodeOrderLog(entry, buyID)
				if err != nil {
					return err
				}
				select {
				case sink <- order:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func decodeOrderLog(entry gethtypes.Log, buyID common.Hash) (OrderEvent, error) {
	if len(entry.Topics) == 0 {
		return OrderEvent{}, fmt.Errorf("order log without topics")
	}
	side, name := OrderSell, "NewSellOrder"
	if entry.Topics[0] == buyID {
		side, name = OrderBuy, "NewBuyOrder"
	}
	var decoded orderLog
	if err := syntheticABI.UnpackIntoInterface(&decoded, name, entry.Data); err != nil {
		return OrderEvent{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if decoded.OrderIndex == nil || !decoded.OrderIndex.IsUint64() {
		return OrderEvent{}, fmt.Errorf("%s index out of range", name)
	}
	return OrderEvent{Token: entry.Address, Side: side, Index: decoded.OrderIndex.Uint64()}, nil
}
