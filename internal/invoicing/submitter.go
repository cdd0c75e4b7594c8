package invoicing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

// Receipt is the backend's acknowledgement of a submitted bill.
type Receipt struct {
	ID        string `json:"id"`
	DocNumber string `json:"doc_number,omitempty"`
}

// Submitter hands a finished bill to the backend.
type Submitter interface {
	Submit(ctx context.Context, kind billing.Kind, payload billing.Payload, idempotencyKey string) (Receipt, error)
}

var submitPaths = map[billing.Kind]string{
	billing.KindCustomerBill:  "/customer-bills",
	billing.KindSupplierBill:  "/supplier-bills",
	billing.KindStockTransfer: "/stock-transfers",
}

// BackendSubmitter posts bills to the backend.
type BackendSubmitter struct {
	client *backend.Client
}

// NewBackendSubmitter builds the submitter.
func NewBackendSubmitter(client *backend.Client) *BackendSubmitter {
	return &BackendSubmitter{client: client}
}

// Submit posts payload with an Idempotency-Key header.
func (s *BackendSubmitter) Submit(ctx context.Context, kind billing.Kind, payload billing.Payload, idempotencyKey string) (Receipt, error) {
	path, ok := submitPaths[kind]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", billing.ErrInvalidKind, kind)
	}
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}
	var receipt Receipt
	if err := s.client.Post(ctx, path, payload, header, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("submit %s: %w", kind, err)
	}
	return receipt, nil
}
