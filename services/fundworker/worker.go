package fundworker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WorkerConfig wires the worker tasks.
type WorkerConfig struct {
	Chain           Chain
	Source          PriceSource
	Quotes          *QuoteStore
	Application     common.Address
	RebalanceEvery  time.Duration
	PricePushEvery  time.Duration
	SettlementDelay time.Duration
	DisableOrders   bool
	Logger          *slog.Logger
}

// Worker runs the rebalancer, the price pusher and the order fulfiller
// against one fund.
type Worker struct {
	cfg        WorkerConfig
	logger     *slog.Logger
	scheduler  *Scheduler
	rebalancer *Rebalancer
	pusher     *PricePusher
	fulfiller  *OrderFulfiller
}

// NewWorker constructs a worker. Zero intervals fall back to the defaults.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RebalanceEvery <= 0 {
		cfg.RebalanceEvery = defaultRebalanceEvery
	}
	if cfg.PricePushEvery <= 0 {
		cfg.PricePushEvery = defaultPricePushEvery
	}
	w := &Worker{
		cfg:        cfg,
		logger:     logger,
		scheduler:  NewScheduler(logger),
		rebalancer: NewRebalancer(cfg.Chain, logger.With(slog.String("task", "rebalance"))),
		fulfiller:  NewOrderFulfiller(cfg.Chain, cfg.SettlementDelay, logger.With(slog.String("task", "orders"))),
	}
	w.scheduler.Every(cfg.RebalanceEvery, w.rebalancer)
	if cfg.Source != nil {
		w.pusher = NewPricePusher(cfg.Chain, cfg.Source, cfg.Quotes, logger.With(slog.String("task", "price_push")))
		w.scheduler.Every(cfg.PricePushEvery, w.pusher)
	}
	return w
}

// Run blocks until ctx is cancelled. A failing order subscription is
// re-established after a pause.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.scheduler.Run(ctx)
	}()
	if !w.cfg.DisableOrders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.watchOrders(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) watchOrders(ctx context.Context) {
	const retryDelay = 10 * time.Second
	for {
		err := w.fulfiller.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Error("order watcher stopped", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// Status reports task state and the most recent quotes.
func (w *Worker) Status(ctx context.Context, quoteLimit int) (StatusReport, error) {
	report := StatusReport{
		Tasks:  w.scheduler.Status(),
		Orders: w.fulfiller.Status(),
	}
	if w.cfg.Application != (common.Address{}) {
		report.Application = w.cfg.Application.Hex()
	}
	if quoteLimit > 0 && w.cfg.Quotes != nil {
		quotes, err := w.cfg.Quotes.Recent(ctx, quoteLimit)
		if err != nil {
			return report, err
		}
		report.Quotes = quotes
	}
	return report, nil
}
