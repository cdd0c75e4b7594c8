package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock_refresh").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("stock_refresh").End(boom), boom)
	m.AddItems("stock_refresh", 3)
	m.AddItems("stock_refresh", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock_refresh", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock_refresh", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stock_refresh")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("stock_refresh")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddItems("x", 1)
}
