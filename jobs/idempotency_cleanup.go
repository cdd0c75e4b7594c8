package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

const idempotencyCleanupJob = "idempotency_cleanup"

// IdempotencyPruner deletes claimed submission keys past their retention.
type IdempotencyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes the postgres idempotency table.
type IdempotencyCleanupJob struct {
	Store     IdempotencyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store IdempotencyPruner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(idempotencyCleanupJob)
	defer func() {
		err = tracker.End(err)
	}()

	retention := j.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.InfoContext(ctx, "idempotency keys pruned", slog.Duration("retention", retention))
	}
	return nil
}
