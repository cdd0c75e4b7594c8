package shared

import "errors"

var (
	// ErrIdempotencyConflict indicates a key that was already claimed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyKeyRequired occurs when a claim is made without a key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
)
