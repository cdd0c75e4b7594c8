package orders

import "errors"

// Domain errors for order transitions.
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownAction     = errors.New("unknown order action")
	ErrActorRequired     = errors.New("actor is required")
)
