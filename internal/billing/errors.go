package billing

import (
	"errors"
	"fmt"
)

// Rejection causes for line-item and header validation.
var (
	ErrMissingField       = errors.New("billing: required field missing")
	ErrInvalidNumber      = errors.New("billing: invalid number")
	ErrInvalidQuantity    = errors.New("billing: quantity must be greater than zero")
	ErrInvalidPrice       = errors.New("billing: unit price must be >= 0")
	ErrDiscountOutOfRange = errors.New("billing: discount out of range")
	ErrDuplicateItem      = errors.New("billing: item already on the bill")
	ErrUnknownItem        = errors.New("billing: item not found in stock")
	ErrInsufficientStock  = errors.New("billing: requested quantity exceeds availability")
	ErrLineNotFound       = errors.New("billing: line not found")
	ErrUnknownField       = errors.New("billing: field cannot be edited")
	ErrEmptyBill          = errors.New("billing: at least one line is required")
	ErrInvalidHeader      = errors.New("billing: bill header incomplete")
	ErrInvalidKind        = errors.New("billing: unknown bill kind")
)

// Rejection is returned when a mutation is refused. The collection is never
// modified when a Rejection is returned. Args carries the values a message
// needs, such as the requested and available quantities.
type Rejection struct {
	Field  string
	Err    error
	Detail string
	Args   []string
}

func (r *Rejection) Error() string {
	switch {
	case r.Field != "" && r.Detail != "":
		return fmt.Sprintf("%s (%s): %s", r.Err.Error(), r.Field, r.Detail)
	case r.Field != "":
		return fmt.Sprintf("%s (%s)", r.Err.Error(), r.Field)
	case r.Detail != "":
		return fmt.Sprintf("%s: %s", r.Err.Error(), r.Detail)
	default:
		return r.Err.Error()
	}
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(field string, err error, detail string, args ...string) error {
	return &Rejection{Field: field, Err: err, Detail: detail, Args: args}
}
