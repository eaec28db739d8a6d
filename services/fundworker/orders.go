package fundworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolium/core/types"
	"portfolium/observability"
)

// OrderFulfiller completes synthetic orders after a settlement delay that
// stands in for the off-chain trade.
type OrderFulfiller struct {
	chain   Chain
	delay   time.Duration
	logger  *slog.Logger
	metrics *observability.WorkerMetrics

	wg        sync.WaitGroup
	pending   atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewOrderFulfiller constructs the fulfilment task.
func NewOrderFulfiller(chain Chain, delay time.Duration, logger *slog.Logger) *OrderFulfiller {
	if logger == nil {
		logger = slog.Default()
	}
	if delay < 0 {
		delay = 0
	}
	return &OrderFulfiller{chain: chain, delay: delay, logger: logger, metrics: observability.Worker()}
}

// FulfillerStatus summarises the fulfilment task.
type FulfillerStatus struct {
	Pending   int64  `json:"pending"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Status reports settlement counters.
func (f *OrderFulfiller) Status() FulfillerStatus {
	return FulfillerStatus{Pending: f.pending.Load(), Completed: f.completed.Load(), Failed: f.failed.Load()}
}

// Run watches every synthetic asset of the fund until ctx is cancelled or the
// subscription fails. In-flight settlements finish before Run returns.
func (f *OrderFulfiller) Run(ctx context.Context) error {
	defer f.wg.Wait()
	assets, err := f.chain.FundAssets(ctx)
	if err != nil {
		return fmt.Errorf("fund assets: %w", err)
	}
	tokens := syntheticTokens(assets)
	if len(tokens) == 0 {
		f.logger.Info("no synthetic assets to watch")
		<-ctx.Done()
		return nil
	}
	sink := make(chan OrderEvent, 64)
	sub, err := f.chain.WatchOrders(ctx, tokens, sink)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	f.logger.Info("watching synthetic orders", slog.Int("tokens", len(tokens)))
	for {
		select {
		case order := <-sink:
			f.logger.Info("order received",
				slog.String("token", order.Token.Hex()),
				slog.String("side", string(order.Side)),
				slog.Uint64("index", order.Index))
			f.pending.Add(1)
			f.wg.Add(1)
			go f.settle(ctx, order)
		case err := <-sub.Err():
			if err != nil {
				return fmt.Errorf("order subscription: %w", err)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// syntheticTokens skips index 0, which always holds the native asset.
func syntheticTokens(assets []FundAsset) []common.Address {
	var tokens []common.Address
	for i, asset := range assets {
		if i == 0 || asset.Type != types.AssetTypeSynthetic {
			continue
		}
		tokens = append(tokens, asset.Address)
	}
	return tokens
}

func (f *OrderFulfiller) settle(ctx context.Context, order OrderEvent) {
	defer f.wg.Done()
	defer f.pending.Add(-1)
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
	var (
		ref string
		err error
	)
	switch order.Side {
	case OrderBuy:
		ref, err = f.chain.CompleteBuyOrder(ctx, order.Token, order.Index)
	case OrderSell:
		ref, err = f.chain.CompleteSellOrder(ctx, order.Token, order.Index)
	default:
		err = fmt.Errorf("unknown order side %q", order.Side)
	}
	f.metrics.RecordOrder(string(order.Side), err)
	if err != nil {
		f.failed.Add(1)
		f.logger.Error("order completion failed",
			slog.String("token", order.Token.Hex()),
			slog.String("side", string(order.Side)),
			slog.Uint64("index", order.Index),
			slog.String("error", err.Error()))
		return
	}
	f.completed.Add(1)
	f.logger.Info("order completed",
		slog.String("token", order.Token.Hex()),
		slog.String("side", string(order.Side)),
		slog.Uint64("index", order.Index),
		slog.String("tx_hash", ref))
}
