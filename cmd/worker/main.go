package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	backendClient, err := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithToken(cfg.BackendToken))
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	var upstream stock.Provider = stock.NewBackendProvider(backendClient)
	if cfg.HasDatabase() {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		upstream = stock.NewMultiProvider(upstream, stock.NewPostgresProvider(pool))
	}
	stockCache := stock.NewCachedProvider(redisClient, upstream, cfg.StockCacheTTL, metrics, logger)

	refreshJob := jobs.NewStockRefreshJob(stockCache, cfg.StockRefreshWindow, logger, jobMetrics)
	refreshTask, err := jobs.NewStockRefreshTask(jobs.StockRefreshPayload{})
	if err != nil {
		logger.Error("build stock refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskStockRefresh, Handler: refreshJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.StockRefreshCron, Task: refreshTask},
	}
	if pool != nil {
		cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyTTL, logger, jobMetrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
