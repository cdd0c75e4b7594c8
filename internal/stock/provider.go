// Package stock loads availability snapshots for billing sessions from the
// backend, the inventory database, or a Redis cache in front of either.
package stock

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// ErrNoProvider is returned when no stock source is configured.
var ErrNoProvider = errors.New("stock: no provider configured")

// Query selects the items and source location of a snapshot.
type Query struct {
	Location  string
	ItemCodes []string
}

// Normalized returns the query with upper-cased, de-duplicated, sorted codes.
func (q Query) Normalized() Query {
	seen := make(map[string]struct{}, len(q.ItemCodes))
	codes := make([]string, 0, len(q.ItemCodes))
	for _, c := range q.ItemCodes {
		code := billing.NormalizeCode(c)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return Query{Location: strings.TrimSpace(q.Location), ItemCodes: codes}
}

// Key identifies the query for de-duplication.
func (q Query) Key() string {
	return q.Location + "|" + strings.Join(q.ItemCodes, ",")
}

// Provider returns the current availability of the queried items. Items the
// source does not know are omitted.
type Provider interface {
	Snapshot(ctx context.Context, q Query) ([]billing.StockAvailability, error)
}

// Table loads a snapshot and indexes it for a session.
func Table(ctx context.Context, p Provider, q Query) (*billing.AvailabilityTable, error) {
	if p == nil {
		return nil, ErrNoProvider
	}
	q = q.Normalized()
	snaps, err := p.Snapshot(ctx, q)
	if err != nil {
		return nil, err
	}
	return billing.NewAvailabilityTable(q.Location, snaps), nil
}
