package orders

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Handler exposes order transitions over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	messages  *shared.Localizer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, messages *shared.Localizer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		messages:  messages,
		validator: validator.New(),
	}
}

// Show returns the order and its legal actions.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err, Order{})
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// Transition applies the action named in the URL.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var input TransitionInput
	if err := httpx.DecodeJSON(r, &input); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest,
			Code:   string(shared.MsgBadRequest),
			Detail: h.messages.Message(r, shared.MsgBadRequest),
		})
		return
	}
	if err := h.validator.Struct(input); err != nil {
		field := "reason"
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusBadRequest,
			Code:   string(shared.MsgBadRequest),
			Field:  field,
			Detail: h.messages.Message(r, shared.MsgBadRequest),
		})
		return
	}

	id := chi.URLParam(r, "id")
	action := Action(chi.URLParam(r, "action"))
	order, err := h.service.Apply(r.Context(), id, action, TransitionRequest{
		Actor:  shared.ActorFromContext(r.Context()),
		Reason: input.Reason,
	})
	if err != nil {
		h.respondError(w, r, err, order)
		return
	}
	httpx.JSON(w, http.StatusOK, WithActions{Order: order, Actions: Allowed(order)})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, current Order) {
	problem := func(status int, key shared.MessageKey, field string, args ...any) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: status,
			Code:   string(key),
			Field:  field,
			Detail: h.messages.Message(r, key, args...),
		})
	}
	switch {
	case errors.Is(err, ErrNotFound):
		problem(http.StatusNotFound, shared.MsgOrderNotFound, "")
	case errors.Is(err, ErrUnknownAction):
		problem(http.StatusNotFound, shared.MsgUnknownAction, "action", chi.URLParam(r, "action"))
	case errors.Is(err, ErrActorRequired):
		problem(http.StatusBadRequest, shared.MsgActorRequired, "actor")
	case errors.Is(err, ErrInvalidTransition):
		problem(http.StatusConflict, shared.MsgInvalidTransition, "", chi.URLParam(r, "action"), string(current.Status))
	default:
		status, msg, ok := httpx.BackendStatus(err)
		if !ok {
			h.logger.ErrorContext(r.Context(), "order request failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if msg == "" {
			problem(status, shared.MsgBackendUnavailable, "")
			return
		}
		problem(status, shared.MsgBackendRejected, "", msg)
	}
}
