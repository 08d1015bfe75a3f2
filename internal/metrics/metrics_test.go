package metrics

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	case out.Histogram != nil:
		return float64(out.GetHistogram().GetSampleCount())
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	assert.NotNil(t, r)
	assert.NotNil(t, r.PrometheusRegistry())

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "runtime collectors should be registered")
}

func TestRegistry_ObserveTick(t *testing.T) {
	r := NewRegistry()

	r.ObserveTick("QUERY_A", "published", 20*time.Millisecond)
	r.ObserveTick("QUERY_A", "published", 10*time.Millisecond)
	r.ObserveTick("QUERY_A", "skipped", time.Millisecond)

	assert.Equal(t, 2.0, metricValue(t, r.TelemetryTicks.WithLabelValues("QUERY_A", "published")))
	assert.Equal(t, 1.0, metricValue(t, r.TelemetryTicks.WithLabelValues("QUERY_A", "skipped")))
	hist, ok := r.TelemetryDuration.WithLabelValues("QUERY_A").(prometheus.Histogram)
	require.True(t, ok)
	assert.Equal(t, 3.0, metricValue(t, hist))
}

func TestRegistry_ObserveRequest(t *testing.T) {
	r := NewRegistry()

	r.ObserveRequest("/sensors", http.StatusOK, 5*time.Millisecond)
	r.ObserveRequest("/sensors", http.StatusBadRequest, time.Millisecond)
	r.ObserveRequest("/sensors", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, metricValue(t, r.APIRequests.WithLabelValues("/sensors", "200")))
	assert.Equal(t, 1.0, metricValue(t, r.APIRequests.WithLabelValues("/sensors", "400")))
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()

	r.SetBrokerConnected(true)
	assert.Equal(t, 1.0, metricValue(t, r.BrokerConnected))
	r.SetBrokerConnected(false)
	assert.Equal(t, 0.0, metricValue(t, r.BrokerConnected))

	r.SetQueryItems("api", 3)
	assert.Equal(t, 3.0, metricValue(t, r.QueryItems.WithLabelValues("api")))
}

func TestRegistry_RegisterDB(t *testing.T) {
	r := NewRegistry()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, r.RegisterDB(db, "main"))
	assert.Error(t, r.RegisterDB(db, "main"), "duplicate registration should fail")
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveTick("QUERY_A", "published", time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "connector_telemetry_ticks_total"))
}
