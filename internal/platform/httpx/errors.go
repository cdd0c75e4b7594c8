// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps platform errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, backend.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		Problem(w, http.StatusBadGateway, "Backend Unavailable", "")
	case errors.As(err, &apiErr):
		status, _, _ := BackendStatus(err)
		Problem(w, status, "Backend Rejected", apiErr.Message)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// BackendStatus maps a backend failure to the status returned to clients and
// the backend's message. ok is false when err did not come from the backend.
// Conflicts and validation failures pass through; everything else is a 502.
func BackendStatus(err error) (status int, message string, ok bool) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway, "", true
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			return apiErr.Status, apiErr.Message, true
		}
		return http.StatusBadGateway, apiErr.Message, true
	}
	return 0, "", false
}
