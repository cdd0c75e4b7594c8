package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and billing events.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	lineEvents      *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	stockFetches    *prometheus.CounterVec
	openSessions    prometheus.Gauge
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_billing_line_events_total",
		Help: "Line item mutations by session kind, operation and outcome.",
	}, []string{"kind", "op", "outcome"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_billing_submissions_total",
		Help: "Bill submissions by session kind and outcome.",
	}, []string{"kind", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_order_transitions_total",
		Help: "Order transition requests by action and outcome.",
	}, []string{"action", "outcome"})
	stock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_fetches_total",
		Help: "Stock snapshot lookups by source and outcome.",
	}, []string{"source", "outcome"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_billing_open_sessions",
		Help: "Billing sessions currently held in memory.",
	})
	registry.MustRegister(requests, duration, lines, submissions, transitions, stock, sessions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		lineEvents:      lines,
		submissions:     submissions,
		transitions:     transitions,
		stockFetches:    stock,
		openSessions:    sessions,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveLine counts a line item add/edit/remove attempt. outcome is "ok" or
// the rejection reason.
func (m *Metrics) ObserveLine(kind, op, outcome string) {
	if m == nil {
		return
	}
	m.lineEvents.WithLabelValues(kind, op, outcome).Inc()
}

// ObserveSubmission counts a bill submission attempt.
func (m *Metrics) ObserveSubmission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// ObserveTransition counts an order transition request.
func (m *Metrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// ObserveStockFetch counts a stock lookup against source.
func (m *Metrics) ObserveStockFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.stockFetches.WithLabelValues(source, outcome).Inc()
}

// SetOpenSessions reports the live session count.
func (m *Metrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
