package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Gateway is the external order persistence collaborator.
type Gateway interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	Transition(ctx context.Context, id string, action Action, req TransitionRequest) (Order, error)
}

// Service applies lifecycle actions through the gateway.
type Service struct {
	gateway Gateway
	audit   shared.Auditor
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the order service.
func NewService(gateway Gateway, audit shared.Auditor, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gateway, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// Get loads the order together with its currently legal actions.
func (s *Service) Get(ctx context.Context, id string) (WithActions, error) {
	order, err := s.gateway.GetOrder(ctx, id)
	if err != nil {
		return WithActions{}, fmt.Errorf("get order: %w", err)
	}
	return WithActions{Order: order, Actions: Allowed(order)}, nil
}

// Apply performs action on the order. Illegal actions are refused before any
// backend call. The returned order is the backend's view after the action.
func (s *Service) Apply(ctx context.Context, id string, action Action, req TransitionRequest) (Order, error) {
	if !action.IsValid() {
		return Order{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		return Order{}, ErrActorRequired
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if action != ActionCancel {
		req.Reason = ""
	}
	if req.At.IsZero() {
		req.At = s.now().UTC()
	}

	current, err := s.gateway.GetOrder(ctx, id)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "error")
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if !CanApply(current, action) {
		s.metrics.ObserveTransition(string(action), "rejected")
		return current, fmt.Errorf("%w: cannot %s order in %s", ErrInvalidTransition, action, current.Status)
	}

	updated, err := s.gateway.Transition(ctx, id, action, req)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "error")
		s.logger.WarnContext(ctx, "order transition failed",
			slog.String("order_id", id),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
		return current, fmt.Errorf("%s order: %w", action, err)
	}
	s.metrics.ObserveTransition(string(action), "ok")

	if s.audit != nil {
		meta := map[string]any{"from": string(current.Status), "to": string(updated.Status)}
		if req.Reason != "" {
			meta["reason"] = req.Reason
		}
		auditErr := s.audit.Record(ctx, shared.AuditLog{
			Actor:    req.Actor,
			Action:   "order." + string(action),
			Entity:   "order",
			EntityID: id,
			Meta:     meta,
			At:       req.At,
		})
		if auditErr != nil {
			s.logger.ErrorContext(ctx, "audit order transition", slog.String("order_id", id), slog.Any("error", auditErr))
		}
	}
	return updated, nil
}

// MoveToProcessing starts work on a pending order.
func (s *Service) MoveToProcessing(ctx context.Context, id, actor string) (Order, error) {
	return s.Apply(ctx, id, ActionProcess, TransitionRequest{Actor: actor})
}

// MoveToChecking marks a processing order for checking.
func (s *Service) MoveToChecking(ctx context.Context, id, actor string) (Order, error) {
	return s.Apply(ctx, id, ActionCheck, TransitionRequest{Actor: actor})
}

// MoveToDelivered completes a checked order.
func (s *Service) MoveToDelivered(ctx context.Context, id, actor string) (Order, error) {
	return s.Apply(ctx, id, ActionDeliver, TransitionRequest{Actor: actor})
}

// ConfirmOrder acknowledges the order once.
func (s *Service) ConfirmOrder(ctx context.Context, id, actor string) (Order, error) {
	return s.Apply(ctx, id, ActionConfirm, TransitionRequest{Actor: actor})
}

// CancelOrder cancels a non-terminal order.
func (s *Service) CancelOrder(ctx context.Context, id, actor, reason string) (Order, error) {
	return s.Apply(ctx, id, ActionCancel, TransitionRequest{Actor: actor, Reason: reason})
}
