package orders

import (
	"context"
	"errors"
	"net/url"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

// BackendGateway talks to the order endpoints of the backend.
type BackendGateway struct {
	client *backend.Client
}

// NewBackendGateway builds the gateway.
func NewBackendGateway(client *backend.Client) *BackendGateway {
	return &BackendGateway{client: client}
}

// GetOrder fetches the order.
func (g *BackendGateway) GetOrder(ctx context.Context, id string) (Order, error) {
	var order Order
	if err := g.client.Get(ctx, "/orders/"+url.PathEscape(id), nil, &order); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// Transition posts the action and returns the backend's updated order.
func (g *BackendGateway) Transition(ctx context.Context, id string, action Action, req TransitionRequest) (Order, error) {
	var order Order
	path := "/orders/" + url.PathEscape(id) + "/" + string(action)
	if err := g.client.Post(ctx, path, req, nil, &order); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return order, nil
}
