package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockRefresh re-reads stock snapshots into the cache.
	TaskStockRefresh = "stock:refresh"
	// TaskIdempotencyCleanup prunes expired submission keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// StockRefreshPayload names the items to refresh. An empty Items list
// refreshes every item looked up within the job's window.
type StockRefreshPayload struct {
	Location string   `json:"location,omitempty"`
	Items    []string `json:"items,omitempty"`
}

// Query converts the payload into a stock query.
func (p StockRefreshPayload) Query() stock.Query {
	return stock.Query{Location: p.Location, ItemCodes: p.Items}.Normalized()
}

// NewStockRefreshTask constructs an Asynq task. Targeted refreshes for the
// same items are deduplicated for a short window.
func NewStockRefreshTask(payload StockRefreshPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}
	if len(payload.Items) > 0 {
		opts = append(opts, asynq.Unique(30*time.Second))
	}
	return asynq.NewTask(TaskStockRefresh, body, opts...), nil
}

// NewIdempotencyCleanupTask constructs the nightly cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}
