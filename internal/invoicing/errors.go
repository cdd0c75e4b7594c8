package invoicing

import "errors"

// Service errors.
var (
	ErrSessionNotFound     = errors.New("billing session not found")
	ErrSubmitInFlight      = errors.New("submission already in progress")
	ErrPartyNotFound       = errors.New("party not found")
	ErrDuplicateSubmission = errors.New("idempotency key already used")
	ErrActorRequired       = errors.New("actor is required")
)
