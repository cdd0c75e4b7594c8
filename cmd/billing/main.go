package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/app"
	"github.com/odyssey-erp/odyssey-billing/internal/invoicing"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/orders"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	localizer := shared.NewLocalizer(cfg.DefaultLocale)

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

	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	}

	backendClient, err := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithToken(cfg.BackendToken))
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		upstream stock.Provider = stock.NewBackendProvider(backendClient)
		auditor  shared.Auditor = shared.NewLogAuditor(logger)
		idem     shared.IdempotencyGuard
	)
	if pool != nil {
		upstream = stock.NewMultiProvider(upstream, stock.NewPostgresProvider(pool))
		auditor = shared.NewAuditLogger(pool)
		idem = shared.NewIdempotencyStore(pool)
	} else {
		idem = shared.NewRedisIdempotency(redisClient, cfg.IdempotencyTTL)
	}
	stockProvider := stock.NewCachedProvider(redisClient, upstream, cfg.StockCacheTTL, metrics, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	registry := invoicing.NewRegistry(cfg.SessionIdleTTL, metrics.SetOpenSessions)
	go registry.Run(ctx, time.Minute)

	billingService := invoicing.NewService(invoicing.ServiceConfig{
		Registry:    registry,
		Directory:   invoicing.NewBackendDirectory(backendClient),
		Stock:       stockProvider,
		Submitter:   invoicing.NewBackendSubmitter(backendClient),
		Idempotency: idem,
		Audit:       auditor,
		Refresher:   jobClient,
		Metrics:     metrics,
		Logger:      logger,
	})
	ordersService := orders.NewService(orders.NewBackendGateway(backendClient), auditor, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: invoicing.NewHandler(logger, billingService, localizer, cfg.SubmitRatePerMinute),
		OrdersHandler:  orders.NewHandler(logger, ordersService, localizer),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
