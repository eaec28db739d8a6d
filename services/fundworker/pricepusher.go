package fundworker

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolium/core/types"
	"portfolium/observability"
)

// maxPriceChars is how many characters of the decimal quote are kept.
const maxPriceChars = 8

// etherDecimals converts whole native units to wei.
const etherDecimals = 18

// PricePusher writes external quotes into the oracle for every stored-price
// asset of the fund.
type PricePusher struct {
	chain   Chain
	source  PriceSource
	quotes  *QuoteStore
	logger  *slog.Logger
	metrics *observability.WorkerMetrics
	now     func() time.Time
}

// NewPricePusher constructs the price push task. quotes may be nil.
func NewPricePusher(chain Chain, source PriceSource, quotes *QuoteStore, logger *slog.Logger) *PricePusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricePusher{
		chain:   chain,
		source:  source,
		quotes:  quotes,
		logger:  logger,
		metrics: observability.Worker(),
		now:     time.Now,
	}
}

func (p *PricePusher) Name() string { return "price_push" }

// Run pushes one price per eligible asset. Failures of a single asset are
// logged and do not stop the others.
func (p *PricePusher) Run(ctx context.Context) error {
	assets, err := p.chain.FundAssets(ctx)
	if err != nil {
		return fmt.Errorf("fund assets: %w", err)
	}
	for _, asset := range assets {
		if asset.Type == types.AssetTypeNative {
			continue
		}
		origin, err := p.chain.PriceOrigin(ctx, asset.Address)
		if err != nil {
			p.logger.Warn("price origin lookup failed", slog.String("asset", asset.Symbol), slog.String("error", err.Error()))
			continue
		}
		if origin != types.PriceOriginStored {
			continue
		}
		if err := p.push(ctx, asset); err != nil {
			p.logger.Warn("price push failed", slog.String("asset", asset.Symbol), slog.String("error", err.Error()))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (p *PricePusher) push(ctx context.Context, asset FundAsset) error {
	record := Quote{Asset: asset.Address.Hex(), Symbol: asset.Symbol, Source: p.source.Name(), ObservedAt: p.now()}
	quote, err := p.source.Quote(ctx, asset.Symbol)
	if err != nil {
		p.metrics.RecordPrice(asset.Symbol, nil, err)
		return fmt.Errorf("quote: %w", err)
	}
	record.Quote = quote.String()
	wei, err := QuoteToWei(quote)
	if err == nil {
		record.Wei = wei.String()
		record.TxRef, err = p.chain.SetPrice(ctx, asset.Address, wei)
	}
	if err != nil {
		record.Error = err.Error()
	}
	p.metrics.RecordPrice(asset.Symbol, wei, err)
	if recErr := p.quotes.Record(ctx, record); recErr != nil {
		p.logger.Warn("record quote failed", slog.String("asset", asset.Symbol), slog.String("error", recErr.Error()))
	}
	if err != nil {
		return err
	}
	p.logger.Info("price pushed",
		slog.String("asset", asset.Symbol),
		slog.String("price", record.Quote),
		slog.String("wei", record.Wei),
		slog.String("tx_hash", record.TxRef))
	return nil
}

// TruncateQuote keeps the first eight characters of the decimal rendering of
// quote, dropping a dangling decimal point.
func TruncateQuote(quote decimal.Decimal) string {
	rendered := quote.String()
	if len(rendered) > maxPriceChars {
		rendered = rendered[:maxPriceChars]
	}
	return strings.TrimSuffix(rendered, ".")
}

// QuoteToWei truncates quote and converts it from whole native units to wei.
func QuoteToWei(quote decimal.Decimal) (*big.Int, error) {
	if quote.Sign() <= 0 {
		return nil, fmt.Errorf("quote must be positive")
	}
	truncated := TruncateQuote(quote)
	value, err := decimal.NewFromString(truncated)
	if err != nil {
		return nil, fmt.Errorf("invalid truncated quote %q", truncated)
	}
	wei := value.Shift(etherDecimals).BigInt()
	if wei.Sign() == 0 {
		return nil, fmt.Errorf("quote %s truncates to zero", truncated)
	}
	return wei, nil
}
