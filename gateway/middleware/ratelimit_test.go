package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"fund": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("fund")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/fund/portfolios", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"fund":   {RatePerSecond: 1, Burst: 1},
		"oracle": {RatePerSecond: 1, Burst: 1},
	}, nil)
	fundHandler := limiter.Middleware("fund")(okHandler())
	oracleHandler := limiter.Middleware("oracle")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/fund/portfolios", nil)
	res := httptest.NewRecorder()
	fundHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected fund request to succeed, got %d", res.Code)
	}

	oracleReq := httptest.NewRequest(http.MethodGet, "/v1/oracle/prices/0x01", nil)
	oracleRes := httptest.NewRecorder()
	oracleHandler.ServeHTTP(oracleRes, oracleReq)
	if oracleRes.Code != http.StatusOK {
		t.Fatalf("expected first oracle request to succeed, got %d", oracleRes.Code)
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"fund": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("fund")(okHandler())

	for _, fill := range []byte{0x01, 0x02} {
		var caller [20]byte
		caller[19] = fill
		req := httptest.NewRequest(http.MethodGet, "/v1/fund/portfolios", nil)
		req = req.WithContext(WithCaller(req.Context(), caller))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected caller %x to have its own budget, got %d", fill, res.Code)
		}
	}
}

func TestRateLimiterIgnoresUnknownGroups(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("events")(okHandler())
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("expected unlimited group, got %d", res.Code)
		}
	}
}
