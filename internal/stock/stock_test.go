package stock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
)

type countingProvider struct {
	calls atomic.Int32
	gate  chan struct{}
	snaps map[string]billing.StockAvailability
	err   error
}

func (p *countingProvider) Snapshot(_ context.Context, q Query) ([]billing.StockAvailability, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return nil, p.err
	}
	var out []billing.StockAvailability
	for _, code := range q.ItemCodes {
		if s, ok := p.snaps[code]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func snap(code string, qty int64) billing.StockAvailability {
	return billing.StockAvailability{
		ItemCode:          code,
		ItemName:          "Item " + code,
		AvailableQuantity: decimal.NewFromInt(qty),
		UnitPrice:         decimal.NewFromInt(100),
	}
}

func newCache(t *testing.T, next Provider) (*CachedProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedProvider(client, next, time.Minute, nil, logger), mr
}

func TestQueryNormalized(t *testing.T) {
	q := Query{Location: " WH-1 ", ItemCodes: []string{"sku-b", " SKU-A", "SKU-B", ""}}.Normalized()
	require.Equal(t, "WH-1", q.Location)
	require.Equal(t, []string{"SKU-A", "SKU-B"}, q.ItemCodes)
	require.Equal(t, "WH-1|SKU-A,SKU-B", q.Key())
}

func TestCachedProviderServesHitsFromRedis(t *testing.T) {
	next := &countingProvider{snaps: map[string]billing.StockAvailability{
		"SKU-A": snap("SKU-A", 10),
		"SKU-B": snap("SKU-B", 5),
	}}
	cache, mr := newCache(t, next)
	ctx := context.Background()
	q := Query{ItemCodes: []string{"SKU-A", "SKU-B", "SKU-Z"}}

	first, err := cache.Snapshot(ctx, q)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.EqualValues(t, 1, next.calls.Load())
	require.True(t, mr.Exists("billing:stock:*:SKU-A"))

	second, err := cache.Snapshot(ctx, Query{ItemCodes: []string{"SKU-A", "SKU-B"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, next.calls.Load())
	require.Equal(t, "SKU-A", second[0].ItemCode)
	require.True(t, second[0].AvailableQuantity.Equal(decimal.NewFromInt(10)))

	// unknown items are never cached, so they are asked for again
	_, err = cache.Snapshot(ctx, Query{ItemCodes: []string{"SKU-Z"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, next.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = cache.Snapshot(ctx, Query{ItemCodes: []string{"SKU-A"}})
	require.NoError(t, err)
	require.EqualValues(t, 3, next.calls.Load())
}

func TestCachedProviderCollapsesConcurrentMisses(t *testing.T) {
	next := &countingProvider{
		gate:  make(chan struct{}),
		snaps: map[string]billing.StockAvailability{"SKU-A": snap("SKU-A", 3)},
	}
	cache, _ := newCache(t, next)
	q := Query{Location: "WH-1", ItemCodes: []string{"SKU-A"}}

	var wg sync.WaitGroup
	results := make([][]billing.StockAvailability, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.Snapshot(context.Background(), q)
			require.NoError(t, err)
			results[i] = res
		}()
	}
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.gate)
	wg.Wait()

	require.EqualValues(t, 1, next.calls.Load())
	for _, res := range results {
		require.Len(t, res, 1)
	}
}

func TestCachedProviderPropagatesUpstreamErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("down")}
	cache, _ := newCache(t, next)
	_, err := cache.Snapshot(context.Background(), Query{ItemCodes: []string{"SKU-A"}})
	require.Error(t, err)
}

func TestCachedProviderRecentQueriesAndRefresh(t *testing.T) {
	next := &countingProvider{snaps: map[string]billing.StockAvailability{
		"SKU-A": snap("SKU-A", 1),
		"SKU-B": snap("SKU-B", 2),
	}}
	cache, _ := newCache(t, next)
	ctx := context.Background()

	_, err := cache.Snapshot(ctx, Query{Location: "WH-1", ItemCodes: []string{"SKU-B", "SKU-A"}})
	require.NoError(t, err)
	_, err = cache.Snapshot(ctx, Query{ItemCodes: []string{"SKU-A"}})
	require.NoError(t, err)

	recent, err := cache.RecentQueries(ctx, time.Hour)
	require.NoError(t, err)
	require.ElementsMatch(t, []Query{
		{Location: "WH-1", ItemCodes: []string{"SKU-A", "SKU-B"}},
		{Location: "", ItemCodes: []string{"SKU-A"}},
	}, recent)

	n, err := cache.Refresh(ctx, recent[0])
	require.NoError(t, err)
	require.Positive(t, n)
}

func TestMultiProviderMergesLocations(t *testing.T) {
	a := &countingProvider{snaps: map[string]billing.StockAvailability{
		"SKU-A": {ItemCode: "SKU-A", ItemName: "Widget", UnitPrice: decimal.NewFromInt(100),
			Locations: []billing.LocationStock{{Location: "WH-1", Quantity: decimal.NewFromInt(4)}}},
	}}
	b := &countingProvider{snaps: map[string]billing.StockAvailability{
		"SKU-A": {ItemCode: "sku-a", ItemName: "Other name",
			Locations: []billing.LocationStock{
				{Location: "WH-1", Quantity: decimal.NewFromInt(99)},
				{Location: "WH-2", Quantity: decimal.NewFromInt(6)},
			}},
		"SKU-B": snap("SKU-B", 7),
	}}

	got, err := NewMultiProvider(a, b).Snapshot(context.Background(), Query{ItemCodes: []string{"SKU-A", "SKU-B"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Widget", got[0].ItemName)
	require.True(t, got[0].AvailableQuantity.Equal(decimal.NewFromInt(10)))
	require.True(t, got[0].Available("WH-2").Equal(decimal.NewFromInt(6)))
	require.True(t, got[1].AvailableQuantity.Equal(decimal.NewFromInt(7)))
}

func TestMultiProviderMergesFlatAndLocations(t *testing.T) {
	flat := &countingProvider{snaps: map[string]billing.StockAvailability{"SKU-A": snap("SKU-A", 10)}}
	located := &countingProvider{snaps: map[string]billing.StockAvailability{
		"SKU-A": {ItemCode: "SKU-A", Locations: []billing.LocationStock{{Location: "WH-1", Quantity: decimal.NewFromInt(4)}}},
	}}

	got, err := NewMultiProvider(flat, located).Snapshot(context.Background(), Query{ItemCodes: []string{"SKU-A"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].AvailableQuantity.Equal(decimal.NewFromInt(14)))
	require.True(t, got[0].Available("").Equal(got[0].AvailableQuantity))
	require.True(t, got[0].Available("WH-1").Equal(decimal.NewFromInt(4)))

	unbounded, ok := billing.NewAvailabilityTable("", got).Lookup("SKU-A")
	require.True(t, ok)
	require.True(t, unbounded.Equal(decimal.NewFromInt(14)))
	bounded, ok := billing.NewAvailabilityTable("WH-1", got).Lookup("SKU-A")
	require.True(t, ok)
	require.True(t, bounded.Equal(decimal.NewFromInt(4)))
}

func TestMultiProviderFailsWhenAnySourceFails(t *testing.T) {
	ok := &countingProvider{snaps: map[string]billing.StockAvailability{}}
	bad := &countingProvider{err: errors.New("down")}
	_, err := NewMultiProvider(ok, bad).Snapshot(context.Background(), Query{ItemCodes: []string{"X"}})
	require.Error(t, err)

	_, err = NewMultiProvider().Snapshot(context.Background(), Query{})
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestBackendProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock", r.URL.Path)
		require.Equal(t, "SKU-A,SKU-B", r.URL.Query().Get("items"))
		require.Equal(t, "WH-1", r.URL.Query().Get("location"))
		_, _ = w.Write([]byte(`[{"item_code":"SKU-A","item_name":"Widget","available_quantity":"10","unit_price":100,
			"locations":[{"location":"WH-1","quantity":"4"}]}]`))
	}))
	defer srv.Close()

	client, err := backend.New(srv.URL, time.Second)
	require.NoError(t, err)

	table, err := Table(context.Background(), NewBackendProvider(client), Query{Location: "WH-1", ItemCodes: []string{"sku-b", "sku-a"}})
	require.NoError(t, err)
	avail, ok := table.Lookup("SKU-A")
	require.True(t, ok)
	require.True(t, avail.Equal(decimal.NewFromInt(4)))
	_, ok = table.Lookup("SKU-B")
	require.False(t, ok)
}

func TestAssembleJoinsBalances(t *testing.T) {
	products := []productRow{
		{SKU: "SKU-A", Name: "Widget", Price: decimal.NewFromInt(100), Unit: "PCS"},
		{SKU: "SKU-B", Name: "Gadget", Price: decimal.NewFromInt(50)},
	}
	balances := []balanceRow{
		{SKU: "SKU-A", Warehouse: "WH-1", Qty: decimal.NewFromInt(4)},
		{SKU: "SKU-A", Warehouse: "WH-2", Qty: decimal.NewFromInt(6)},
		{SKU: "SKU-X", Warehouse: "WH-1", Qty: decimal.NewFromInt(1)},
	}
	got := assemble(products, balances)
	require.Len(t, got, 2)
	require.True(t, got[0].AvailableQuantity.Equal(decimal.NewFromInt(10)))
	require.Equal(t, "PCS", got[0].Unit)
	require.True(t, got[1].AvailableQuantity.IsZero())
	require.Empty(t, got[1].Locations)
}

func TestTableWithoutProvider(t *testing.T) {
	_, err := Table(context.Background(), nil, Query{})
	require.ErrorIs(t, err, ErrNoProvider)
}
