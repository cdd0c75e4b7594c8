package invoicing

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// OpenInput starts a session.
type OpenInput struct {
	Kind   billing.Kind
	Header billing.Header
	Actor  string
}

// SubmitInput carries the submit request. An empty IdempotencyKey gets a
// generated one; Date overrides the header date when set.
type SubmitInput struct {
	Actor          string
	IdempotencyKey string
	Date           *time.Time
}

// SessionView is a read-only copy of a session.
type SessionView struct {
	ID            string             `json:"id"`
	Kind          billing.Kind       `json:"kind"`
	Header        billing.Header     `json:"header"`
	PartyName     string             `json:"party_name,omitempty"`
	OpenedBy      string             `json:"opened_by"`
	OpenedAt      time.Time          `json:"opened_at"`
	Items         []billing.LineItem `json:"items"`
	Totals        billing.Totals     `json:"totals"`
	StockLocation string             `json:"stock_location,omitempty"`
	StockItems    int                `json:"stock_items"`
}

// LineResult is returned after a line mutation.
type LineResult struct {
	Line   billing.LineItem `json:"line"`
	Totals billing.Totals   `json:"totals"`
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	Receipt        Receipt         `json:"receipt"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        billing.Payload `json:"payload"`
}

// viewOf must be called with e.mu held.
func viewOf(e *entry) SessionView {
	view := SessionView{
		ID:        e.id,
		Kind:      e.session.Kind(),
		Header:    e.header,
		PartyName: e.partyName,
		OpenedBy:  e.openedBy,
		OpenedAt:  e.openedAt,
		Items:     e.session.Items(),
		Totals:    e.session.Totals(),
	}
	if table := e.session.Availability(); table != nil {
		view.StockLocation = table.Location()
		view.StockItems = table.Len()
	}
	return view
}
