package invoicing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes billing sessions over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	messages    *shared.Localizer
	validator   *validator.Validate
	submitLimit int
}

// NewHandler constructs a Handler. submitLimit caps submissions per actor per
// minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, messages *shared.Localizer, submitLimit int) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		messages:    messages,
		validator:   validator.New(),
		submitLimit: submitLimit,
	}
}

// Open starts a session.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	header := billing.Header{
		CustomerID:          req.CustomerID,
		SupplierID:          req.SupplierID,
		SourceLocation:      req.SourceLocation,
		DestinationLocation: req.DestinationLocation,
	}
	if req.Date != "" {
		// validated above
		header.Date, _ = time.Parse(dateLayout, req.Date)
	}
	view, err := h.service.Open(r.Context(), OpenInput{
		Kind:   billing.Kind(req.Kind),
		Header: header,
		Actor:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

// Show returns the session.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// Summary renders the session as localised plain text.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := WriteSummary(w, h.messages.Printer(r), view); err != nil {
		h.logger.WarnContext(r.Context(), "write summary", slog.Any("error", err))
	}
}

// Close discards the session.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddLine appends a line.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req LineRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	res, err := h.service.AddLine(r.Context(), chi.URLParam(r, "id"), req.draft())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// EditLine changes one field of a line.
func (h *Handler) EditLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	res, err := h.service.EditLine(r.Context(), chi.URLParam(r, "id"), lineID, billing.Field(req.Field), req.Value)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// RemoveLine deletes a line.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}
	totals, err := h.service.RemoveLine(r.Context(), chi.URLParam(r, "id"), lineID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"totals": totals})
}

// SetExtraDiscount sets the invoice-level discount.
func (h *Handler) SetExtraDiscount(w http.ResponseWriter, r *http.Request) {
	var req ExtraDiscountRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	totals, err := h.service.SetExtraDiscount(r.Context(), chi.URLParam(r, "id"), req.Percent)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"totals": totals})
}

// RefreshStock reloads availability for the session's items.
func (h *Handler) RefreshStock(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RefreshStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// Submit sends the bill to the backend.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	in := SubmitInput{
		Actor:          shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.Date != "" {
		date, _ := time.Parse(dateLayout, req.Date)
		in.Date = &date
	}
	res, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// decode reads and validates the body. optional allows an empty body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil && !(optional && errors.Is(err, io.EOF)) {
		h.badRequest(w, r, "")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		field := ""
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		h.badRequest(w, r, field)
		return false
	}
	return true
}

func (h *Handler) lineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, r, "line_id")
		return 0, false
	}
	return id, true
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, field string) {
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Status: http.StatusBadRequest,
		Code:   string(shared.MsgBadRequest),
		Field:  field,
		Detail: h.messages.Message(r, shared.MsgBadRequest),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	problem := func(status int, key shared.MessageKey, field string, args ...any) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: status,
			Code:   string(key),
			Field:  field,
			Detail: h.messages.Message(r, key, args...),
		})
	}
	var rej *billing.Rejection
	if errors.As(err, &rej) {
		status, key, args := rejectionProblem(rej)
		problem(status, key, rej.Field, args...)
		return
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		problem(http.StatusNotFound, shared.MsgSessionNotFound, "")
	case errors.Is(err, ErrSubmitInFlight):
		problem(http.StatusConflict, shared.MsgSubmitInFlight, "")
	case errors.Is(err, ErrDuplicateSubmission):
		problem(http.StatusConflict, shared.MsgDuplicateSubmit, "")
	case errors.Is(err, ErrPartyNotFound):
		problem(http.StatusUnprocessableEntity, shared.MsgPartyNotFound, "")
	case errors.Is(err, ErrActorRequired):
		problem(http.StatusBadRequest, shared.MsgActorRequired, "actor")
	case errors.Is(err, billing.ErrInvalidKind):
		problem(http.StatusBadRequest, shared.MsgBadRequest, "kind")
	default:
		status, msg, ok := httpx.BackendStatus(err)
		if !ok {
			h.logger.ErrorContext(r.Context(), "billing request failed", slog.Any("error", err))
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

func rejectionProblem(rej *billing.Rejection) (int, shared.MessageKey, []any) {
	arg := func(i int) string {
		if i < len(rej.Args) {
			return rej.Args[i]
		}
		return ""
	}
	switch {
	case errors.Is(rej, billing.ErrLineNotFound):
		return http.StatusNotFound, shared.MsgLineNotFound, nil
	case errors.Is(rej, billing.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, shared.MsgInsufficientStock, []any{arg(0), arg(1)}
	case errors.Is(rej, billing.ErrDuplicateItem):
		return http.StatusConflict, shared.MsgDuplicateItem, []any{arg(0)}
	case errors.Is(rej, billing.ErrUnknownItem):
		return http.StatusUnprocessableEntity, shared.MsgUnknownItem, []any{arg(0)}
	case errors.Is(rej, billing.ErrMissingField):
		return http.StatusUnprocessableEntity, shared.MsgMissingField, []any{rej.Field}
	case errors.Is(rej, billing.ErrInvalidNumber):
		return http.StatusUnprocessableEntity, shared.MsgInvalidNumber, []any{rej.Field}
	case errors.Is(rej, billing.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, shared.MsgInvalidQuantity, []any{rej.Field}
	case errors.Is(rej, billing.ErrInvalidPrice):
		return http.StatusUnprocessableEntity, shared.MsgInvalidPrice, []any{rej.Field}
	case errors.Is(rej, billing.ErrDiscountOutOfRange):
		return http.StatusUnprocessableEntity, shared.MsgDiscountRange, []any{rej.Field}
	case errors.Is(rej, billing.ErrUnknownField):
		return http.StatusUnprocessableEntity, shared.MsgUnknownField, []any{rej.Field}
	case errors.Is(rej, billing.ErrEmptyBill):
		return http.StatusUnprocessableEntity, shared.MsgEmptyBill, nil
	case errors.Is(rej, billing.ErrInvalidHeader):
		return http.StatusUnprocessableEntity, shared.MsgInvalidHeader, []any{rej.Field}
	default:
		return http.StatusBadRequest, shared.MsgBadRequest, nil
	}
}
