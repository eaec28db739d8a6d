package portfoliumd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"lukechampine.com/blake3"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/gateway/middleware"
)

func newTestIndex(t *testing.T) *EventIndex {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	index, err := OpenEventIndex(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func event(eventType string, attrs map[string]string) *types.Event {
	return &types.Event{Type: eventType, Attributes: attrs}
}

func TestEventIndexFiltersAndPages(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	owner := types.HexAddress(testOwner)

	require.NoError(t, index.Record(ctx, 1,
		event("guard.request_created", map[string]string{"requestId": "0"}),
		event("fund.portfolio_created", map[string]string{"portfolio": owner}),
	))
	require.NoError(t, index.Record(ctx, 2,
		event("fund.share_bought", map[string]string{"portfolio": owner, "amount": "5"}),
		nil,
	))

	all, err := index.Query(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "guard", all[0].Module)
	require.Equal(t, uint64(2), all[2].Height)
	require.Equal(t, "5", all[2].Decoded()["amount"])

	funds, err := index.Query(ctx, EventFilter{Module: "fund"})
	require.NoError(t, err)
	require.Len(t, funds, 2)

	// portfolio filters ignore address case
	byPortfolio, err := index.Query(ctx, EventFilter{Portfolio: owner})
	require.NoError(t, err)
	require.Len(t, byPortfolio, 2)

	bought, err := index.Query(ctx, EventFilter{Type: "fund.share_bought"})
	require.NoError(t, err)
	require.Len(t, bought, 1)

	page, err := index.Query(ctx, EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := index.Query(ctx, EventFilter{AfterID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "fund.share_bought", rest[0].Type)
}

func TestEventIndexFollowsPlatform(t *testing.T) {
	p := newTestPlatform(t)
	index := newTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := p.Subscribe(16)
	defer unsubscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		index.Follow(ctx, events, p.Height, nil)
	}()

	_, err := p.Apply(core.ModuleGuard, func(e *core.Engines) error {
		_, err := e.Guard.CreateRequest(testAdmin, testBuyer, types.UserRole)
		return err
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		records, err := index.Query(context.Background(), EventFilter{Type: "guard.request_created"})
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestEventsEndpoint(t *testing.T) {
	index := newTestIndex(t)
	owner := types.HexAddress(testOwner)
	require.NoError(t, index.Record(context.Background(), 4,
		event("fund.portfolio_created", map[string]string{"portfolio": owner}),
		event("reserve.deposited", map[string]string{"amount": "10"}),
	))
	srv, err := New(Config{Platform: newTestPlatform(t), Events: index})
	require.NoError(t, err)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/events?module=fund", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []eventView `json:"events"`
		Next   uint64      `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, owner, body.Events[0].Attributes["portfolio"])
	require.Equal(t, uint64(4), body.Events[0].Height)
	require.Equal(t, body.Events[0].ID, body.Next)

	req = httptest.NewRequest(http.MethodGet, "/v1/events?after=abc", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpointWithoutIndex(t *testing.T) {
	h := newTestServer(t, newTestPlatform(t), middleware.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportParquet(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, index.Record(ctx, uint64(i), event("reserve.deposited", map[string]string{"amount": fmt.Sprint(i)})))
	}
	require.NoError(t, index.Record(ctx, 9, event("guard.request_created", nil)))

	path := filepath.Join(t.TempDir(), "out", "events.parquet")
	written, err := index.ExportParquet(ctx, path, EventFilter{Module: "reserve", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 5, written)

	file, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer file.Close()
	pr, err := reader.NewParquetReader(file, new(eventRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(5), pr.GetNumRows())

	rows := make([]eventRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "reserve", rows[0].Module)
	require.Equal(t, `{"amount":"4"}`, rows[4].Attributes)
}

func TestWriteChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")
	require.NoError(t, os.WriteFile(path, []byte("portfolium events"), 0o644))

	digest, err := WriteChecksum(path)
	require.NoError(t, err)
	expected := blake3.Sum256([]byte("portfolium events"))
	require.Equal(t, fmt.Sprintf("%x", expected), digest)

	sidecar, err := os.ReadFile(path + ".blake3")
	require.NoError(t, err)
	require.Equal(t, digest+"\n", string(sidecar))
}
