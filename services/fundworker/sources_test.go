package fundworker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	source, err := NewStaticSource(map[string]string{"usdx": " 0.5 "})
	require.NoError(t, err)
	require.Equal(t, "static", source.Name())

	price, err := source.Quote(context.Background(), "USDX")
	require.NoError(t, err)
	require.Equal(t, "0.5", price.String())

	_, err = source.Quote(context.Background(), "OTHER")
	require.Error(t, err)

	_, err = NewStaticSource(map[string]string{"BAD": "-1"})
	require.Error(t, err)
}

func TestCoinGeckoSourceQuotes(t *testing.T) {
	var gotIDs, gotVs string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		gotVs = r.URL.Query().Get("vs_currencies")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tesla-tokenized-stock":{"matic":241.123456789012345678}}`))
	}))
	defer server.Close()

	source := NewCoinGeckoSource(server.Client(), server.URL, "", map[string]string{"sTSLA": "tesla-tokenized-stock"}, 100)
	price, err := source.Quote(context.Background(), "stsla")
	require.NoError(t, err)
	require.Equal(t, "tesla-tokenized-stock", gotIDs)
	require.Equal(t, "matic", gotVs)
	require.Equal(t, "241.1234", TruncateQuote(price))
}

func TestCoinGeckoSourceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") == "limited" {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	source := NewCoinGeckoSource(server.Client(), server.URL, "usd", nil, 100)
	_, err := source.Quote(context.Background(), "LIMITED")
	require.ErrorContains(t, err, "status 429")

	_, err = source.Quote(context.Background(), "MISSING")
	require.ErrorContains(t, err, "quote missing")
}

func TestNewPriceSourceRejectsUnknownType(t *testing.T) {
	_, err := NewPriceSource(PriceSourceConfig{Type: "pyth"})
	require.Error(t, err)

	source, err := NewPriceSource(PriceSourceConfig{Type: "coingecko"})
	require.NoError(t, err)
	require.Equal(t, "coingecko", source.Name())
}
