package orders

import "time"

// Order is the locally held, read-only view of an order owned by the backend.
type Order struct {
	ID                 string     `json:"id"`
	DocNumber          string     `json:"doc_number,omitempty"`
	CustomerID         string     `json:"customer_id,omitempty"`
	Status             Status     `json:"order_status"`
	ConfirmedBy        *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsConfirmed reports whether the order has been acknowledged.
func (o Order) IsConfirmed() bool {
	return o.ConfirmedAt != nil || o.Status == StatusConfirmed
}

// TransitionRequest is sent to the backend with each action.
type TransitionRequest struct {
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// WithActions pairs an order with the actions it currently allows.
type WithActions struct {
	Order
	Actions []Action `json:"actions"`
}
