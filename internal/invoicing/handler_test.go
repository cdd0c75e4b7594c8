package invoicing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/backend"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/stock"
)

type fakeBackend struct {
	mu       sync.Mutex
	bills    []map[string]any
	keys     []string
	failBill bool
}

func (b *fakeBackend) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Get("/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "C-1" {
			httpx.JSON(w, http.StatusNotFound, map[string]string{"message": "no such customer"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"id": "C-1", "name": "Toko Maju"})
	})
	r.Get("/stock", func(w http.ResponseWriter, r *http.Request) {
		var out []map[string]any
		for _, code := range strings.Split(r.URL.Query().Get("items"), ",") {
			switch code {
			case "SKU-A":
				out = append(out, map[string]any{"item_code": "SKU-A", "item_name": "Widget", "available_quantity": "20", "unit_price": "100"})
			case "SKU-B":
				out = append(out, map[string]any{"item_code": "SKU-B", "item_name": "Gadget", "available_quantity": "10", "unit_price": "50"})
			}
		}
		httpx.JSON(w, http.StatusOK, out)
	})
	r.Post("/customer-bills", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failBill {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		b.bills = append(b.bills, body)
		b.keys = append(b.keys, r.Header.Get("Idempotency-Key"))
		httpx.JSON(w, http.StatusCreated, map[string]string{"id": "INV-9", "doc_number": "SI/2024/0009"})
	})
	return r
}

func newTestRouter(t *testing.T, fb *fakeBackend, submitLimit int) http.Handler {
	t.Helper()
	srv := httptest.NewServer(fb.router(t))
	t.Cleanup(srv.Close)
	client, err := backend.New(srv.URL, time.Second)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(ServiceConfig{
		Directory: NewBackendDirectory(client),
		Stock:     stock.NewBackendProvider(client),
		Submitter: NewBackendSubmitter(client),
		Logger:    logger,
	})
	h := NewHandler(logger, svc, shared.NewLocalizer("en"), submitLimit)

	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(shared.ActorHeader, "clerk")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func openSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/sessions", `{"kind":"customer_bill","customer_id":"C-1","date":"2024-05-02"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view SessionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, "Toko Maju", view.PartyName)
	return view.ID
}

func TestHandlerBillingFlow(t *testing.T) {
	fb := &fakeBackend{}
	router := newTestRouter(t, fb, 0)
	id := openSession(t, router)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/lines",
		`{"item_code":"sku-a","item_name":"Widget","unit_price":"100","quantity":"2","discount_percentage":"10"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var added struct {
		Line struct {
			ID     int64  `json:"id"`
			Amount string `json:"amount"`
		} `json:"line"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	require.Equal(t, "180", added.Line.Amount)

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/lines",
		`{"item_code":"SKU-B","item_name":"Gadget","unit_price":"50","quantity":"15"}`, "Accept-Language", "id")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "quantity", problem.Field)
	require.Equal(t, string(shared.MsgInsufficientStock), problem.Code)
	require.Equal(t, "diminta 15 tetapi hanya tersedia 10", problem.Detail)

	rr = do(t, router, http.MethodGet, "/sessions/"+id+"/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "SKU-A Widget: 2 x 100.00 = 180.00")
	require.Contains(t, rr.Body.String(), "Total: 180.00")

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/submit", "", "Idempotency-Key", "idem-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var submitted SubmitResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))
	require.Equal(t, "INV-9", submitted.Receipt.ID)
	require.Equal(t, []string{"idem-1"}, fb.keys)
	require.Equal(t, "C-1", fb.bills[0]["customer_id"])
	require.Equal(t, "2024-05-02", fb.bills[0]["date"])
	require.Equal(t, "180", fb.bills[0]["finalTotal"])

	rr = do(t, router, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerEditAndRemoveLine(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{}, 0)
	id := openSession(t, router)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/lines",
		`{"item_code":"SKU-A","item_name":"Widget","unit_price":"100","quantity":"2","discount_percentage":"10"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var added struct {
		Line struct {
			ID int64 `json:"id"`
		} `json:"line"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	line := "/sessions/" + id + "/lines/" + strconv.FormatInt(added.Line.ID, 10)

	rr = do(t, router, http.MethodPatch, line, `{"field":"quantity","value":"5"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"amount":"450"`)

	rr = do(t, router, http.MethodPatch, line, `{"field":"id","value":"5"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPut, "/sessions/"+id+"/extra-discount", `{"percent":"10"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"final_total":"405"`)

	rr = do(t, router, http.MethodDelete, line, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodDelete, line, "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPatch, "/sessions/"+id+"/lines/abc", `{"field":"quantity","value":"5"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.MsgEmptyBill))

	rr = do(t, router, http.MethodDelete, "/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandlerRejectsMalformedRequests(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{}, 0)

	rr := do(t, router, http.MethodPost, "/sessions", `{"kind":"refund"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"field":"Kind"`)

	rr = do(t, router, http.MethodPost, "/sessions", `{"kind":"customer_bill","customer_id":"C-1","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/sessions", `{"kind":"customer_bill","customer_id":"C-404"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.MsgPartyNotFound))

	rr = do(t, router, http.MethodGet, "/sessions/missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerSubmitBackendFailureKeepsSession(t *testing.T) {
	fb := &fakeBackend{failBill: true}
	router := newTestRouter(t, fb, 0)
	id := openSession(t, router)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/lines",
		`{"item_code":"SKU-A","item_name":"Widget","unit_price":"100","quantity":"1"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/submit", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)

	rr = do(t, router, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"SKU-A"`)
}

func TestHandlerSubmitRateLimit(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{}, 1)
	id := openSession(t, router)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/submit", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}
