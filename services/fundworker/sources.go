package fundworker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// PriceSource resolves the external price of one whole token, denominated in
// the native currency.
type PriceSource interface {
	Name() string
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NewPriceSource builds the source selected by cfg.
func NewPriceSource(cfg PriceSourceConfig) (PriceSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "static":
		return NewStaticSource(cfg.Prices)
	case "coingecko":
		client := &http.Client{Timeout: cfg.Timeout.Duration}
		return NewCoinGeckoSource(client, cfg.Endpoint, cfg.VsCurrency, cfg.Assets, cfg.RequestsPerSecond), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.Type)
	}
}

// StaticSource serves fixed quotes, keyed by symbol.
type StaticSource struct {
	prices map[string]decimal.Decimal
}

// NewStaticSource parses decimal prices keyed by symbol.
func NewStaticSource(prices map[string]string) (*StaticSource, error) {
	parsed := make(map[string]decimal.Decimal, len(prices))
	for symbol, raw := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || price.Sign() <= 0 {
			return nil, fmt.Errorf("static price %s: invalid value %q", symbol, raw)
		}
		parsed[normaliseSymbol(symbol)] = price
	}
	return &StaticSource{prices: parsed}, nil
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := s.prices[normaliseSymbol(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("static source: no price for %s", symbol)
	}
	return price, nil
}

// CoinGeckoSource adapts the public CoinGecko simple price API. Requests are
// throttled to stay inside the public rate limit.
type CoinGeckoSource struct {
	client     *http.Client
	endpoint   string
	vsCurrency string
	ids        map[string]string
	limiter    *rate.Limiter
}

// NewCoinGeckoSource constructs a source. ids maps token symbols to CoinGecko
// asset identifiers; unmapped symbols are looked up lower-cased.
func NewCoinGeckoSource(client *http.Client, endpoint, vsCurrency string, ids map[string]string, perSecond float64) *CoinGeckoSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	vs := strings.ToLower(strings.TrimSpace(vsCurrency))
	if vs == "" {
		vs = "matic"
	}
	if perSecond <= 0 {
		perSecond = 0.5
	}
	mapped := make(map[string]string, len(ids))
	for symbol, id := range ids {
		mapped[normaliseSymbol(symbol)] = strings.TrimSpace(id)
	}
	return &CoinGeckoSource{
		client:     client,
		endpoint:   ep,
		vsCurrency: vs,
		ids:        mapped,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) assetID(symbol string) string {
	if id, ok := s.ids[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (s *CoinGeckoSource) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id := s.assetID(symbol)
	if id == "" {
		return decimal.Zero, fmt.Errorf("coingecko: unmapped asset %s", symbol)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", s.vsCurrency)
	req.URL.RawQuery = values.Encode()
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode: %w", err)
	}
	raw, ok := payload[id][s.vsCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko: quote missing for %s", symbol)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("coingecko: invalid price %q for %s", raw, symbol)
	}
	return price, nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
