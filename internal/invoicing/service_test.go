package invoicing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
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
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

type fakeDirectory struct {
	parties map[string]string
}

func (d fakeDirectory) Lookup(_ context.Context, _ billing.Kind, id string) (Party, error) {
	name, ok := d.parties[id]
	if !ok {
		return Party{}, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	return Party{ID: id, Name: name}, nil
}

type fakeStock struct {
	mu      sync.Mutex
	snaps   map[string]billing.StockAvailability
	queries []stock.Query
	err     error
}

func (f *fakeStock) Snapshot(_ context.Context, q stock.Query) ([]billing.StockAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []billing.StockAvailability
	for _, code := range q.ItemCodes {
		if s, ok := f.snaps[code]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStock) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []billing.Payload
	keys     []string
	started  chan struct{}
	gate     chan struct{}
	failWith error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ billing.Kind, payload billing.Payload, key string) (Receipt, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.failWith != nil {
		return Receipt{}, f.failWith
	}
	f.payloads = append(f.payloads, payload)
	return Receipt{ID: fmt.Sprintf("INV-%d", len(f.payloads)), DocNumber: "DOC-1"}, nil
}

type recordingAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingRefresher struct {
	queries []stock.Query
}

func (r *recordingRefresher) ScheduleStockRefresh(_ context.Context, q stock.Query) error {
	r.queries = append(r.queries, q)
	return nil
}

type fixture struct {
	svc       *Service
	stock     *fakeStock
	submitter *fakeSubmitter
	audit     *recordingAuditor
	refresher *recordingRefresher
	redis     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		stock: &fakeStock{snaps: map[string]billing.StockAvailability{
			"SKU-A": {ItemCode: "SKU-A", ItemName: "Widget", AvailableQuantity: decimal.NewFromInt(20), UnitPrice: decimal.NewFromInt(100)},
			"SKU-B": {ItemCode: "SKU-B", ItemName: "Gadget", AvailableQuantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(50),
				Locations: []billing.LocationStock{{Location: "WH-1", Quantity: decimal.NewFromInt(10)}}},
		}},
		submitter: &fakeSubmitter{},
		audit:     &recordingAuditor{},
		refresher: &recordingRefresher{},
		redis:     mr,
	}
	f.svc = NewService(ServiceConfig{
		Directory:   fakeDirectory{parties: map[string]string{"C-1": "Toko Maju", "S-1": "PT Sumber"}},
		Stock:       f.stock,
		Submitter:   f.submitter,
		Idempotency: shared.NewRedisIdempotency(client, time.Hour),
		Audit:       f.audit,
		Refresher:   f.refresher,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) openCustomerBill(t *testing.T) SessionView {
	t.Helper()
	view, err := f.svc.Open(context.Background(), OpenInput{
		Kind:   billing.KindCustomerBill,
		Header: billing.Header{CustomerID: "C-1"},
		Actor:  "clerk",
	})
	require.NoError(t, err)
	return view
}

func widget(qty string) billing.Draft {
	return billing.Draft{ItemCode: "sku-a", ItemName: "Widget", UnitPrice: "100", Quantity: qty, DiscountPercentage: "10"}
}

func TestOpenChecksKindHeaderAndParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, OpenInput{Kind: "refund", Actor: "clerk"})
	require.ErrorIs(t, err, billing.ErrInvalidKind)

	_, err = f.svc.Open(ctx, OpenInput{Kind: billing.KindCustomerBill, Header: billing.Header{CustomerID: "C-1"}})
	require.ErrorIs(t, err, ErrActorRequired)

	_, err = f.svc.Open(ctx, OpenInput{Kind: billing.KindCustomerBill, Actor: "clerk"})
	require.ErrorIs(t, err, billing.ErrInvalidHeader)

	_, err = f.svc.Open(ctx, OpenInput{Kind: billing.KindSupplierBill, Header: billing.Header{SupplierID: "S-404"}, Actor: "clerk"})
	require.ErrorIs(t, err, ErrPartyNotFound)

	_, err = f.svc.Open(ctx, OpenInput{
		Kind:   billing.KindStockTransfer,
		Header: billing.Header{SourceLocation: "WH-1", DestinationLocation: " WH-1 "},
		Actor:  "clerk",
	})
	require.ErrorIs(t, err, billing.ErrInvalidHeader)

	view := f.openCustomerBill(t)
	require.NotEmpty(t, view.ID)
	require.Equal(t, "Toko Maju", view.PartyName)
	require.Equal(t, "clerk", view.OpenedBy)
	require.Equal(t, 1, f.svc.Registry().Len())
}

func TestAddLineAppliesDiscountAndStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)

	res, err := f.svc.AddLine(ctx, view.ID, widget("2"))
	require.NoError(t, err)
	require.Equal(t, "SKU-A", res.Line.ItemCode)
	require.Equal(t, "180", res.Line.Amount().String())
	require.Equal(t, "180", res.Totals.FinalTotal.String())

	_, err = f.svc.AddLine(ctx, view.ID, widget("1"))
	require.ErrorIs(t, err, billing.ErrDuplicateItem)

	_, err = f.svc.AddLine(ctx, view.ID, billing.Draft{ItemCode: "SKU-B", ItemName: "Gadget", UnitPrice: "50", Quantity: "15"})
	var rej *billing.Rejection
	require.ErrorAs(t, err, &rej)
	require.ErrorIs(t, err, billing.ErrInsufficientStock)
	require.Equal(t, []string{"15", "10"}, rej.Args)

	_, err = f.svc.AddLine(ctx, view.ID, billing.Draft{ItemCode: "SKU-Z", ItemName: "Ghost", UnitPrice: "1", Quantity: "1"})
	require.ErrorIs(t, err, billing.ErrUnknownItem)

	got, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, 1, got.StockItems)
	require.Equal(t, []string{"SKU-A", "SKU-Z"}, f.stock.queries[len(f.stock.queries)-1].ItemCodes)
}

func TestEditLineRecomputesAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)

	added, err := f.svc.AddLine(ctx, view.ID, widget("2"))
	require.NoError(t, err)

	res, err := f.svc.EditLine(ctx, view.ID, added.Line.ID, billing.FieldQuantity, "5")
	require.NoError(t, err)
	require.Equal(t, "450", res.Line.Amount().String())

	_, err = f.svc.EditLine(ctx, view.ID, added.Line.ID, billing.FieldQuantity, "25")
	require.ErrorIs(t, err, billing.ErrInsufficientStock)

	_, err = f.svc.EditLine(ctx, view.ID, 999, billing.FieldQuantity, "1")
	require.ErrorIs(t, err, billing.ErrLineNotFound)

	totals, err := f.svc.SetExtraDiscount(ctx, view.ID, "10")
	require.NoError(t, err)
	require.Equal(t, "405", totals.FinalTotal.String())

	_, err = f.svc.SetExtraDiscount(ctx, view.ID, "150")
	require.ErrorIs(t, err, billing.ErrDiscountOutOfRange)

	totals, err = f.svc.RemoveLine(ctx, view.ID, added.Line.ID)
	require.NoError(t, err)
	require.Zero(t, totals.LineCount)
}

func TestTransferIsBoundedBySourceLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Open(ctx, OpenInput{
		Kind:   billing.KindStockTransfer,
		Header: billing.Header{SourceLocation: "WH-2", DestinationLocation: "WH-1"},
		Actor:  "clerk",
	})
	require.NoError(t, err)

	_, err = f.svc.AddLine(ctx, view.ID, billing.Draft{ItemCode: "SKU-B", ItemName: "Gadget", UnitPrice: "50", Quantity: "1"})
	require.ErrorIs(t, err, billing.ErrInsufficientStock)
	require.Equal(t, "WH-2", f.stock.queries[0].Location)
}

func TestSupplierBillSkipsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Open(ctx, OpenInput{Kind: billing.KindSupplierBill, Header: billing.Header{SupplierID: "S-1"}, Actor: "clerk"})
	require.NoError(t, err)

	_, err = f.svc.AddLine(ctx, view.ID, billing.Draft{ItemCode: "NEW-1", ItemName: "New stock", UnitPrice: "10", Quantity: "500"})
	require.NoError(t, err)
	require.Zero(t, f.stock.calls())
}

func TestStockFailureLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)
	f.stock.err = backend.ErrUnavailable

	_, err := f.svc.AddLine(ctx, view.ID, widget("1"))
	require.ErrorIs(t, err, backend.ErrUnavailable)

	got, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Empty(t, got.Items)
}

func TestSubmitClosesSessionOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)
	_, err := f.svc.AddLine(ctx, view.ID, widget("2"))
	require.NoError(t, err)

	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	res, err := f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "key-1", Date: &date})
	require.NoError(t, err)
	require.Equal(t, "INV-1", res.Receipt.ID)
	require.Equal(t, "key-1", res.IdempotencyKey)
	require.Equal(t, "2024-05-02", res.Payload.Date)
	require.Equal(t, "C-1", res.Payload.CustomerID)
	require.Equal(t, "180", res.Payload.FinalTotal.String())

	_, err = f.svc.Get(ctx, view.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Zero(t, f.svc.Registry().Len())

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "bill.submit", f.audit.logs[0].Action)
	require.Equal(t, "INV-1", f.audit.logs[0].EntityID)
	require.Equal(t, []stock.Query{{ItemCodes: []string{"SKU-A"}}}, f.refresher.queries)
}

func TestSubmitGeneratesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)
	_, err := f.svc.AddLine(ctx, view.ID, widget("1"))
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk"})
	require.NoError(t, err)
	require.NotEmpty(t, res.IdempotencyKey)
	require.Equal(t, []string{res.IdempotencyKey}, f.submitter.keys)
}

func TestSubmitFailureKeepsSessionForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)
	_, err := f.svc.AddLine(ctx, view.ID, widget("2"))
	require.NoError(t, err)

	f.submitter.failWith = fmt.Errorf("submit: %w", backend.ErrUnavailable)
	_, err = f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "retry-me"})
	require.ErrorIs(t, err, backend.ErrUnavailable)

	got, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Empty(t, f.audit.logs)
	require.False(t, f.redis.Exists(shared.IdempotencyRedisKey("billing.customer_bill", "retry-me")))

	f.submitter.failWith = nil
	res, err := f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "retry-me"})
	require.NoError(t, err)
	require.Equal(t, "retry-me", res.IdempotencyKey)
}

func TestSubmitRefusesReusedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.openCustomerBill(t)
	_, err := f.svc.AddLine(ctx, first.ID, widget("1"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, first.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "same"})
	require.NoError(t, err)

	second := f.openCustomerBill(t)
	_, err = f.svc.AddLine(ctx, second.ID, widget("1"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, second.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "same"})
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	_, err = f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
}

func TestSubmitRejectsEmptyBillAndMissingActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)

	_, err := f.svc.Submit(ctx, view.ID, SubmitInput{})
	require.ErrorIs(t, err, ErrActorRequired)

	_, err = f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk"})
	require.ErrorIs(t, err, billing.ErrEmptyBill)
	require.Empty(t, f.submitter.keys)

	_, err = f.svc.Submit(ctx, "missing", SubmitInput{Actor: "clerk"})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitInFlightBlocksMutationsAndSecondSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)
	_, err := f.svc.AddLine(ctx, view.ID, widget("1"))
	require.NoError(t, err)

	f.submitter.started = make(chan struct{}, 1)
	f.submitter.gate = make(chan struct{})

	var wg sync.WaitGroup
	var firstErr atomic.Value
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "k"}); err != nil {
			firstErr.Store(err)
		}
	}()
	<-f.submitter.started

	_, err = f.svc.Submit(ctx, view.ID, SubmitInput{Actor: "clerk", IdempotencyKey: "k2"})
	require.ErrorIs(t, err, ErrSubmitInFlight)
	_, err = f.svc.AddLine(ctx, view.ID, billing.Draft{ItemCode: "SKU-B", ItemName: "Gadget", UnitPrice: "50", Quantity: "1"})
	require.ErrorIs(t, err, ErrSubmitInFlight)
	require.ErrorIs(t, f.svc.Close(ctx, view.ID), ErrSubmitInFlight)

	close(f.submitter.gate)
	wg.Wait()
	require.Nil(t, firstErr.Load())
	require.Len(t, f.submitter.payloads, 1)
	require.Len(t, f.submitter.payloads[0].Items, 1)
}

func TestCloseDiscardsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.openCustomerBill(t)

	require.NoError(t, f.svc.Close(ctx, view.ID))
	require.ErrorIs(t, f.svc.Close(ctx, view.ID), ErrSessionNotFound)
	_, err := f.svc.AddLine(ctx, view.ID, widget("1"))
	require.True(t, errors.Is(err, ErrSessionNotFound))
}
