package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

type upstream struct {
	mu      sync.Mutex
	queries []stock.Query
	err     error
}

func (u *upstream) Snapshot(_ context.Context, q stock.Query) ([]billing.StockAvailability, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queries = append(u.queries, q)
	if u.err != nil {
		return nil, u.err
	}
	out := make([]billing.StockAvailability, 0, len(q.ItemCodes))
	for _, code := range q.ItemCodes {
		out = append(out, billing.StockAvailability{ItemCode: code, ItemName: code, AvailableQuantity: decimal.NewFromInt(5)})
	}
	return out, nil
}

func newRefreshJob(t *testing.T, up *upstream) (*StockRefreshJob, *stock.CachedProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := stock.NewCachedProvider(client, up, time.Minute, nil, logger)
	job := NewStockRefreshJob(cache, time.Hour, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	return job, cache, mr
}

func TestStockRefreshTaskPayload(t *testing.T) {
	task, err := NewStockRefreshTask(StockRefreshPayload{Location: "WH-1", Items: []string{"b", "A"}})
	require.NoError(t, err)
	require.Equal(t, TaskStockRefresh, task.Type())

	var payload StockRefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, stock.Query{Location: "WH-1", ItemCodes: []string{"A", "B"}}, payload.Query())
}

func TestStockRefreshTargetedItems(t *testing.T) {
	up := &upstream{}
	job, _, mr := newRefreshJob(t, up)

	task, err := NewStockRefreshTask(StockRefreshPayload{Items: []string{"sku-a"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, up.queries, 1)
	require.True(t, mr.Exists("billing:stock:*:SKU-A"))
}

func TestStockRefreshRecentItems(t *testing.T) {
	up := &upstream{}
	job, cache, mr := newRefreshJob(t, up)
	ctx := context.Background()

	_, err := cache.Snapshot(ctx, stock.Query{Location: "WH-1", ItemCodes: []string{"SKU-A", "SKU-B"}})
	require.NoError(t, err)
	mr.Del("billing:stock:WH-1:SKU-A")

	require.NoError(t, job.Handle(ctx, asynq.NewTask(TaskStockRefresh, nil)))
	require.True(t, mr.Exists("billing:stock:WH-1:SKU-A"))
	last := up.queries[len(up.queries)-1]
	require.Equal(t, stock.Query{Location: "WH-1", ItemCodes: []string{"SKU-A", "SKU-B"}}, last)
}

func TestStockRefreshFailuresAndBadPayload(t *testing.T) {
	up := &upstream{err: errors.New("backend down")}
	job, _, _ := newRefreshJob(t, up)

	task, err := NewStockRefreshTask(StockRefreshPayload{Items: []string{"SKU-A"}})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskStockRefresh, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unset *StockRefreshJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
}

func TestWorkerServerConfig(t *testing.T) {
	cfg := WorkerConfig{}.serverConfig()
	require.Equal(t, 5, cfg.Concurrency)
	require.Equal(t, map[string]int{QueueDefault: 1}, cfg.Queues)

	cfg = WorkerConfig{Concurrency: 12, Queues: map[string]int{QueueDefault: 3, "low": 1}}.serverConfig()
	require.Equal(t, 12, cfg.Concurrency)
	require.Equal(t, 3, cfg.Queues[QueueDefault])
}
