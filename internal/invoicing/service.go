package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

// StockRefresher schedules a cache refresh after stock has moved.
type StockRefresher interface {
	ScheduleStockRefresh(ctx context.Context, q stock.Query) error
}

// ServiceConfig collects the collaborators of the billing service. Stock,
// Idempotency, Audit and Refresher are optional.
type ServiceConfig struct {
	Registry    *Registry
	Directory   Directory
	Stock       stock.Provider
	Submitter   Submitter
	Idempotency shared.IdempotencyGuard
	Audit       shared.Auditor
	Refresher   StockRefresher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service drives billing sessions from open to submit.
type Service struct {
	registry  *Registry
	directory Directory
	stock     stock.Provider
	submitter Submitter
	idem      shared.IdempotencyGuard
	audit     shared.Auditor
	refresher StockRefresher
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(0, cfg.Metrics.SetOpenSessions)
	}
	return &Service{
		registry:  registry,
		directory: cfg.Directory,
		stock:     cfg.Stock,
		submitter: cfg.Submitter,
		idem:      cfg.Idempotency,
		audit:     cfg.Audit,
		refresher: cfg.Refresher,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Registry exposes the session registry for the sweeper.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Open starts a session after checking the header and the party.
func (s *Service) Open(ctx context.Context, in OpenInput) (SessionView, error) {
	kind := in.Kind
	if !kind.IsValid() {
		return SessionView{}, fmt.Errorf("%w: %q", billing.ErrInvalidKind, kind)
	}
	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		return SessionView{}, ErrActorRequired
	}
	header := normalizeHeader(in.Header)
	if err := header.Validate(kind); err != nil {
		return SessionView{}, err
	}

	var partyName string
	if partyID := partyOf(kind, header); partyID != "" && s.directory != nil {
		party, err := s.directory.Lookup(ctx, kind, partyID)
		if err != nil {
			return SessionView{}, fmt.Errorf("verify party: %w", err)
		}
		partyName = party.Name
	}

	e := &entry{
		session:   billing.NewSession(kind, billing.WithClock(s.now)),
		header:    header,
		partyName: partyName,
		openedBy:  actor,
	}
	s.registry.add(e)
	s.logger.InfoContext(ctx, "billing session opened",
		slog.String("session_id", e.id),
		slog.String("kind", string(kind)),
		slog.String("actor", actor),
	)
	return viewOf(e), nil
}

// Get returns the current state of a session.
func (s *Service) Get(_ context.Context, id string) (SessionView, error) {
	var view SessionView
	err := s.withEntry(id, func(e *entry) error {
		view = viewOf(e)
		return nil
	})
	return view, err
}

// Close discards a session without submitting it.
func (s *Service) Close(ctx context.Context, id string) error {
	err := s.withEntry(id, func(e *entry) error {
		e.closed = true
		s.registry.remove(e.id)
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "billing session closed", slog.String("session_id", id))
	}
	return err
}

// AddLine validates draft and appends it to the session.
func (s *Service) AddLine(ctx context.Context, id string, draft billing.Draft) (LineResult, error) {
	var res LineResult
	err := s.withEntry(id, func(e *entry) error {
		if err := s.loadStock(ctx, e, draft.ItemCode); err != nil {
			return err
		}
		item, err := e.session.Add(draft)
		s.observeLine(e, "add", err)
		if err != nil {
			return err
		}
		res = LineResult{Line: item, Totals: e.session.Totals()}
		return nil
	})
	return res, err
}

// EditLine changes one field of a line.
func (s *Service) EditLine(ctx context.Context, id string, lineID int64, field billing.Field, value string) (LineResult, error) {
	var res LineResult
	err := s.withEntry(id, func(e *entry) error {
		extra := ""
		if field == billing.FieldItemCode {
			extra = value
		}
		if err := s.loadStock(ctx, e, extra); err != nil {
			return err
		}
		item, err := e.session.Edit(lineID, field, value)
		s.observeLine(e, "edit", err)
		if err != nil {
			return err
		}
		res = LineResult{Line: item, Totals: e.session.Totals()}
		return nil
	})
	return res, err
}

// RemoveLine deletes a line and returns the new totals.
func (s *Service) RemoveLine(_ context.Context, id string, lineID int64) (billing.Totals, error) {
	var totals billing.Totals
	err := s.withEntry(id, func(e *entry) error {
		err := e.session.Remove(lineID)
		s.observeLine(e, "remove", err)
		if err != nil {
			return err
		}
		totals = e.session.Totals()
		return nil
	})
	return totals, err
}

// SetExtraDiscount sets the invoice-level discount percentage. Blank or
// malformed input counts as zero.
func (s *Service) SetExtraDiscount(_ context.Context, id string, percent string) (billing.Totals, error) {
	value := billing.Coerce(percent)
	var totals billing.Totals
	err := s.withEntry(id, func(e *entry) error {
		if err := e.session.SetExtraDiscount(value); err != nil {
			return err
		}
		totals = e.session.Totals()
		return nil
	})
	return totals, err
}

// RefreshStock reloads availability for every item on the session.
func (s *Service) RefreshStock(ctx context.Context, id string) (SessionView, error) {
	var view SessionView
	err := s.withEntry(id, func(e *entry) error {
		if err := s.loadStock(ctx, e, ""); err != nil {
			return err
		}
		view = viewOf(e)
		return nil
	})
	return view, err
}

// Submit sends the bill to the backend. The session stays open and unchanged
// when the backend fails, so the caller can retry with the same key.
func (s *Service) Submit(ctx context.Context, id string, in SubmitInput) (SubmitResult, error) {
	actor := strings.TrimSpace(in.Actor)
	if actor == "" {
		return SubmitResult{}, ErrActorRequired
	}

	e, ok := s.registry.get(id)
	if !ok {
		return SubmitResult{}, ErrSessionNotFound
	}
	if !e.submitting.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrSubmitInFlight
	}
	defer e.submitting.Store(false)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return SubmitResult{}, ErrSessionNotFound
	}
	header := e.header
	if in.Date != nil {
		header.Date = *in.Date
	}
	payload, err := billing.BuildPayload(e.session, header)
	kind := e.session.Kind()
	codes := sessionCodes(e.session)
	e.mu.Unlock()
	if err != nil {
		s.metrics.ObserveSubmission(string(kind), "rejected")
		return SubmitResult{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	scope := "billing." + string(kind)
	if s.idem != nil {
		if err := s.idem.Claim(ctx, scope, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.metrics.ObserveSubmission(string(kind), "duplicate")
				return SubmitResult{}, fmt.Errorf("%w: %s", ErrDuplicateSubmission, key)
			}
			return SubmitResult{}, fmt.Errorf("claim idempotency key: %w", err)
		}
	}

	// the backend call outlives a client disconnect; the client timeout bounds it
	receipt, err := s.submitter.Submit(context.WithoutCancel(ctx), kind, payload, key)
	if err != nil {
		s.metrics.ObserveSubmission(string(kind), "error")
		if s.idem != nil {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), scope, key); relErr != nil {
				s.logger.WarnContext(ctx, "release idempotency key", slog.String("key", key), slog.Any("error", relErr))
			}
		}
		s.logger.WarnContext(ctx, "bill submission failed",
			slog.String("session_id", id),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return SubmitResult{}, err
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	s.registry.remove(id)
	s.metrics.ObserveSubmission(string(kind), "ok")
	s.logger.InfoContext(ctx, "bill submitted",
		slog.String("session_id", id),
		slog.String("kind", string(kind)),
		slog.String("receipt_id", receipt.ID),
	)
	s.recordSubmit(ctx, actor, kind, receipt, payload)
	s.scheduleRefresh(ctx, kind, header, codes)

	return SubmitResult{Receipt: receipt, IdempotencyKey: key, Payload: payload}, nil
}

func (s *Service) withEntry(id string, fn func(*entry) error) error {
	e, ok := s.registry.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionNotFound
	}
	if e.submitting.Load() {
		return ErrSubmitInFlight
	}
	return fn(e)
}

// loadStock replaces the availability table of a stock-bounded session with
// a fresh snapshot covering its items and extra. Must be called with e.mu held.
func (s *Service) loadStock(ctx context.Context, e *entry, extra string) error {
	kind := e.session.Kind()
	if !kind.StockBounded() || s.stock == nil {
		return nil
	}
	codes := sessionCodes(e.session)
	if code := billing.NormalizeCode(extra); code != "" {
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil
	}
	table, err := stock.Table(ctx, s.stock, stock.Query{Location: stockLocation(kind, e.header), ItemCodes: codes})
	if err != nil {
		return fmt.Errorf("load stock: %w", err)
	}
	e.session.SetAvailability(table)
	return nil
}

func (s *Service) observeLine(e *entry, op string, err error) {
	outcome := "ok"
	var rej *billing.Rejection
	switch {
	case errors.As(err, &rej):
		outcome = rejectionReason(rej.Err)
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveLine(string(e.session.Kind()), op, outcome)
}

func (s *Service) recordSubmit(ctx context.Context, actor string, kind billing.Kind, receipt Receipt, payload billing.Payload) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "bill.submit",
		Entity:   string(kind),
		EntityID: receipt.ID,
		Meta: map[string]any{
			"doc_number":  receipt.DocNumber,
			"lines":       len(payload.Items),
			"final_total": payload.FinalTotal.StringFixed(2),
		},
		At: s.now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit bill submission", slog.String("receipt_id", receipt.ID), slog.Any("error", err))
	}
}

func (s *Service) scheduleRefresh(ctx context.Context, kind billing.Kind, header billing.Header, codes []string) {
	if s.refresher == nil || !kind.StockBounded() || len(codes) == 0 {
		return
	}
	q := stock.Query{Location: stockLocation(kind, header), ItemCodes: codes}
	if err := s.refresher.ScheduleStockRefresh(context.WithoutCancel(ctx), q); err != nil {
		s.logger.WarnContext(ctx, "schedule stock refresh", slog.Any("error", err))
	}
}

func normalizeHeader(h billing.Header) billing.Header {
	h.CustomerID = strings.TrimSpace(h.CustomerID)
	h.SupplierID = strings.TrimSpace(h.SupplierID)
	h.SourceLocation = strings.TrimSpace(h.SourceLocation)
	h.DestinationLocation = strings.TrimSpace(h.DestinationLocation)
	return h
}

func sessionCodes(session *billing.Session) []string {
	items := session.Items()
	codes := make([]string, 0, len(items)+1)
	for _, it := range items {
		codes = append(codes, it.ItemCode)
	}
	return codes
}

func stockLocation(kind billing.Kind, h billing.Header) string {
	if kind == billing.KindStockTransfer || kind == billing.KindCustomerBill {
		return h.SourceLocation
	}
	return ""
}

func partyOf(kind billing.Kind, h billing.Header) string {
	switch kind {
	case billing.KindCustomerBill:
		return h.CustomerID
	case billing.KindSupplierBill:
		return h.SupplierID
	default:
		return ""
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, billing.ErrDuplicateItem):
		return "duplicate"
	case errors.Is(err, billing.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, billing.ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, billing.ErrDiscountOutOfRange):
		return "discount_range"
	case errors.Is(err, billing.ErrLineNotFound):
		return "not_found"
	default:
		return "invalid"
	}
}
