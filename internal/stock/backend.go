package stock

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

// BackendProvider reads stock from the backend's inventory endpoint.
type BackendProvider struct {
	client *backend.Client
}

// NewBackendProvider builds the provider.
func NewBackendProvider(client *backend.Client) *BackendProvider {
	return &BackendProvider{client: client}
}

// Snapshot calls GET /stock?items=...&location=....
func (p *BackendProvider) Snapshot(ctx context.Context, q Query) ([]billing.StockAvailability, error) {
	params := url.Values{}
	if len(q.ItemCodes) > 0 {
		params.Set("items", strings.Join(q.ItemCodes, ","))
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	var out []billing.StockAvailability
	if err := p.client.Get(ctx, "/stock", params, &out); err != nil {
		return nil, fmt.Errorf("stock: backend snapshot: %w", err)
	}
	return out, nil
}
