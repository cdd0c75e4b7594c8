package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

// ErrInvalidAuditLog is returned when a record lacks its identifying fields.
var ErrInvalidAuditLog = errors.New("audit log requires actor/action/entity/entity_id")

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Actor, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// LogAuditor writes audit entries to the application log. It is used when
// no database is configured.
type LogAuditor struct {
	logger *slog.Logger
}

// NewLogAuditor returns an Auditor backed by logger.
func NewLogAuditor(logger *slog.Logger) *LogAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditor{logger: logger}
}

// Record logs the entry at info level.
func (l *LogAuditor) Record(ctx context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "audit",
		slog.String("actor", log.Actor),
		slog.String("action", log.Action),
		slog.String("entity", log.Entity),
		slog.String("entity_id", log.EntityID),
		slog.Any("meta", log.Meta),
	)
	return nil
}

func (log AuditLog) validate() error {
	if log.Actor == "" || log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return ErrInvalidAuditLog
	}
	return nil
}
