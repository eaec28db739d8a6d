package portfoliumd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolium/core"
	"portfolium/core/genesis"
	"portfolium/core/types"
	"portfolium/gateway/middleware"
	"portfolium/storage"
)

const testSecret = "portfoliumd-test-secret"

var (
	testAdmin   = fillAccount(0x0a)
	testSigner1 = fillAccount(0x51)
	testSigner2 = fillAccount(0x52)
	testApp     = fillAccount(0xaa)
	testOwner   = fillAccount(0x03)
	testBuyer   = fillAccount(0x07)
)

func fillAccount(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func testSpec() *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		GenesisTime:        "2024-01-01T00:00:00Z",
		Admin:              types.HexAddress(testAdmin),
		Signers:            []string{types.HexAddress(testSigner1), types.HexAddress(testSigner2)},
		Quorum:             2,
		Application:        types.HexAddress(testApp),
		PlatformCommission: "100",
		Alloc: map[string]string{
			types.HexAddress(testOwner): "1000000000000000000",
			types.HexAddress(testBuyer): "1000000000000000000",
		},
		Router: genesis.RouterSpec{Inventory: "1000000"},
		Synthetic: []genesis.SyntheticSpec{{
			AssetSpec:   genesis.AssetSpec{Name: "Tesla, Inc.", Symbol: "sTSLA", Price: "100", Supported: true},
			CompanyName: "Tesla, Inc.",
			CompanyID:   "TSLA",
			DepotID:     "depot-1",
			Commission:  "10",
		}},
	}
}

func newTestPlatform(t *testing.T) *core.Platform {
	t.Helper()
	p, err := core.NewPlatform(storage.NewMemDB(), testSpec())
	require.NoError(t, err)
	return p
}

func newTestServer(t *testing.T, p *core.Platform, auth middleware.AuthConfig) http.Handler {
	t.Helper()
	srv, err := New(Config{Platform: p, Auth: auth})
	require.NoError(t, err)
	return srv.Handler()
}

type call struct {
	method string
	path   string
	caller *[20]byte
	token  string
	body   interface{}
}

func do(t *testing.T, h http.Handler, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.caller != nil {
		req.Header.Set(CallerHeader, types.HexAddress(*c.caller))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func syntheticToken(t *testing.T, h http.Handler, symbol string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/synthetic/tokens", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	for _, token := range tokens {
		if token["symbol"] == symbol {
			return token["address"].(string)
		}
	}
	t.Fatalf("synthetic token %s not listed", symbol)
	return ""
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	rec, body := do(t, h, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestGuardRequestReachesQuorum(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	target := types.HexAddress(testBuyer)

	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/guard/requests", caller: &testAdmin,
		body: map[string]string{"target": target, "role": "USER_ROLE"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := uint64(body["id"].(float64))

	approve := fmt.Sprintf("/v1/guard/requests/%d/approve", id)
	rec, body = do(t, h, call{method: http.MethodPost, path: approve, caller: &testSigner1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "pending", body["status"])

	rec, _ = do(t, h, call{method: http.MethodPost, path: approve, caller: &testSigner1})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, h, call{method: http.MethodPost, path: approve, caller: &testSigner2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "executed", body["status"])

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/guard/roles/USER_ROLE/" + target})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["hasRole"])

	rec, body = do(t, h, call{method: http.MethodPost, path: approve, caller: &testSigner1})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_DECIDED", body["code"])
}

func TestGuardRejectsNonAdminRequest(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/guard/requests", caller: &testBuyer,
		body: map[string]string{"target": types.HexAddress(testOwner), "role": "USER_ROLE"}})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestWriteWithoutCaller(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/guard/requests",
		body: map[string]string{"target": types.HexAddress(testOwner), "role": "USER_ROLE"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestMalformedPayload(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/guard/requests", caller: &testAdmin,
		body: map[string]string{"target": "not-an-address", "role": "USER_ROLE"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_ARGUMENT", body["code"])

	rec, _ = do(t, h, call{method: http.MethodPost, path: "/v1/guard/requests", caller: &testAdmin,
		body: map[string]string{"target": types.HexAddress(testOwner), "role": "USER_ROLE", "extra": "x"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFundPortfolioLifecycle(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	owner := types.HexAddress(testOwner)

	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios", caller: &testOwner,
		body: map[string]string{"name": "Index", "symbol": "IDX", "value": "100"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, owner, body["owner"])

	rec, _ = do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios", caller: &testOwner,
		body: map[string]string{"name": "Index", "symbol": "IDX", "value": "100"}})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/fund/portfolios/" + owner})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "IDX", body["symbol"])

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/fund/portfolios/" + owner + "/cost?amount=5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "100", body["cost"])

	rec, body = do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios/" + owner + "/buy", caller: &testBuyer,
		body: map[string]string{"amount": "5", "value": "50"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	require.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	rec, body = do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios/" + owner + "/buy", caller: &testBuyer,
		body: map[string]string{"amount": "5", "value": "150"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "100", body["cost"])

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/fund/portfolios/" + owner + "/balances/" + types.HexAddress(testBuyer)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5", body["shares"])
}

func TestSyntheticOrderSettlement(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	token := syntheticToken(t, h, "sTSLA")
	buyer := types.HexAddress(testBuyer)

	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/synthetic/tokens/" + token + "/buy", caller: &testBuyer,
		body: map[string]string{"amount": "3", "value": "100000"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "open", body["status"])
	require.Equal(t, buyer, body["trader"])

	complete := "/v1/synthetic/tokens/" + token + "/orders/buy/0/complete"
	rec, _ = do(t, h, call{method: http.MethodPost, path: complete, caller: &testBuyer})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = do(t, h, call{method: http.MethodPost, path: complete, caller: &testApp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "completed", body["status"])

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/synthetic/tokens/" + token + "/balances/" + buyer})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", body["balance"])
}

func TestStatusReportsModules(t *testing.T) {
	p := newTestPlatform(t)
	h := newTestServer(t, p, middleware.AuthConfig{})
	rec, body := do(t, h, call{method: http.MethodGet, path: "/v1/status"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, p.Root().Hex(), body["root"])
	modules, ok := body["modules"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, modules, core.ModuleFund)

	rec, _ = do(t, h, call{method: http.MethodGet, path: "/v1/worker/status"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthenticatedWrites(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		Issuer:         "portfolium",
		Audience:       "portfoliumd",
		AllowAnonymous: true,
	})
	payload := map[string]string{"name": "Index", "symbol": "IDX", "value": "100"}

	// the caller header is ignored once tokens are required
	rec, _ := do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios", caller: &testOwner, body: payload})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios", token: "not-a-jwt", body: payload})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.IssueToken(middleware.TokenRequest{
		Secret:   testSecret,
		Subject:  testOwner,
		Issuer:   "portfolium",
		Audience: "portfoliumd",
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	rec, body := do(t, h, call{method: http.MethodPost, path: "/v1/fund/portfolios", token: token, body: payload})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, types.HexAddress(testOwner), body["owner"])

	rec, body = do(t, h, call{method: http.MethodGet, path: "/v1/fund/portfolios/" + types.HexAddress(testOwner)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Index", body["name"])
}

func TestAnonymousReadsCanBeDisabled(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
	})
	rec, _ := do(t, h, call{method: http.MethodGet, path: "/v1/guard/signers"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.IssueToken(middleware.TokenRequest{Secret: testSecret, Subject: testBuyer, TTL: time.Hour})
	require.NoError(t, err)
	rec, body := do(t, h, call{method: http.MethodGet, path: "/v1/guard/signers", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["quorum"])
}
