package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

const stockRefreshJob = "stock_refresh"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockCache is the part of the cached stock provider the job drives.
type StockCache interface {
	Refresh(ctx context.Context, q stock.Query) (int, error)
	RecentQueries(ctx context.Context, window time.Duration) ([]stock.Query, error)
}

// StockRefreshJob keeps the stock cache warm for items clerks are using.
type StockRefreshJob struct {
	Cache   StockCache
	Window  time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockRefreshJob wires dependencies for the refresh handler.
func NewStockRefreshJob(cache StockCache, window time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockRefreshJob {
	return &StockRefreshJob{Cache: cache, Window: window, Logger: logger, Metrics: metrics}
}

// Handle processes stock refresh tasks.
func (j *StockRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("stock refresh: handler not configured")
	}
	var payload StockRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(stockRefreshJob)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	queries := []stock.Query{payload.Query()}
	if len(payload.Items) == 0 {
		recent, err := j.Cache.RecentQueries(ctx, j.window())
		if err != nil {
			resultErr = err
			logger.Error("load recent stock queries", slog.Any("error", err))
			return resultErr
		}
		queries = recent
	}
	if len(queries) == 0 {
		logger.Info("no stock items to refresh")
		return resultErr
	}

	start := time.Now()
	refreshed := 0
	for _, q := range queries {
		n, err := j.Cache.Refresh(ctx, q)
		if err != nil {
			resultErr = err
			logger.Error("refresh stock", slog.String("location", q.Location), slog.Any("error", err))
			return resultErr
		}
		refreshed += n
	}
	j.metrics().AddItems(stockRefreshJob, refreshed)
	logger.Info("refreshed stock cache",
		slog.Int("queries", len(queries)),
		slog.Int("items", refreshed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StockRefreshJob) window() time.Duration {
	if j.Window > 0 {
		return j.Window
	}
	return time.Hour
}

func (j *StockRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockRefresh))
	}
	return slog.Default().With(slog.String("job", TaskStockRefresh))
}

func (j *StockRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
