package invoicing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

// Party is a customer or supplier as known by the backend.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory verifies the party a bill is raised against.
type Directory interface {
	Lookup(ctx context.Context, kind billing.Kind, id string) (Party, error)
}

// BackendDirectory reads parties from the backend.
type BackendDirectory struct {
	client *backend.Client
}

// NewBackendDirectory builds the directory.
func NewBackendDirectory(client *backend.Client) *BackendDirectory {
	return &BackendDirectory{client: client}
}

// Lookup fetches /customers/{id} or /suppliers/{id}.
func (d *BackendDirectory) Lookup(ctx context.Context, kind billing.Kind, id string) (Party, error) {
	var collection string
	switch kind {
	case billing.KindCustomerBill:
		collection = "customers"
	case billing.KindSupplierBill:
		collection = "suppliers"
	default:
		return Party{}, fmt.Errorf("%w: %s has no party", billing.ErrInvalidKind, kind)
	}
	var party Party
	if err := d.client.Get(ctx, "/"+collection+"/"+url.PathEscape(id), nil, &party); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return Party{}, fmt.Errorf("%w: %s %s", ErrPartyNotFound, collection, id)
		}
		return Party{}, err
	}
	if party.ID == "" {
		party.ID = id
	}
	return party, nil
}
