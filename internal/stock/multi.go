package stock

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// MultiProvider queries several sources in parallel and merges the results.
// Location breakdowns are combined and a location reported by more than one
// source keeps the earlier provider's figure. Name, price and unit come from
// the first source that knows the item. Totals without a breakdown are kept as
// an unnamed location, so they count toward unbounded lookups only.
type MultiProvider struct {
	providers []Provider
}

// NewMultiProvider builds a fan-out provider.
func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

// Snapshot fans out q and merges. Any failing source fails the snapshot.
func (m *MultiProvider) Snapshot(ctx context.Context, q Query) ([]billing.StockAvailability, error) {
	if len(m.providers) == 0 {
		return nil, ErrNoProvider
	}
	results := make([][]billing.StockAvailability, len(m.providers))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range m.providers {
		g.Go(func() error {
			snaps, err := p.Snapshot(ctx, q)
			if err != nil {
				return err
			}
			results[i] = snaps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(results), nil
}

type mergedItem struct {
	snap billing.StockAvailability
	flat decimal.Decimal
	seen map[string]struct{}
}

func merge(results [][]billing.StockAvailability) []billing.StockAvailability {
	var order []string
	items := map[string]*mergedItem{}
	for _, snaps := range results {
		for _, s := range snaps {
			code := billing.NormalizeCode(s.ItemCode)
			it, ok := items[code]
			if !ok {
				it = &mergedItem{snap: s, flat: decimal.Zero, seen: map[string]struct{}{}}
				it.snap.ItemCode = code
				it.snap.Locations = nil
				items[code] = it
				order = append(order, code)
			}
			if len(s.Locations) == 0 {
				it.flat = it.flat.Add(s.AvailableQuantity)
				continue
			}
			for _, loc := range s.Locations {
				if _, dup := it.seen[loc.Location]; dup {
					continue
				}
				it.seen[loc.Location] = struct{}{}
				it.snap.Locations = append(it.snap.Locations, loc)
			}
		}
	}
	out := make([]billing.StockAvailability, 0, len(order))
	for _, code := range order {
		it := items[code]
		if len(it.snap.Locations) > 0 && !it.flat.IsZero() {
			it.snap.Locations = append(it.snap.Locations, billing.LocationStock{Quantity: it.flat})
		}
		total := decimal.Zero
		if len(it.snap.Locations) == 0 {
			total = it.flat
		}
		for _, loc := range it.snap.Locations {
			total = total.Add(loc.Quantity)
		}
		it.snap.AvailableQuantity = total
		out = append(out, it.snap)
	}
	return out
}
