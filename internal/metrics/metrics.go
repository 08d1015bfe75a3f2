// Package metrics exposes Prometheus collectors for the connector.
//
// A Registry owns its own prometheus.Registry (not the global default) with
// Go runtime and process collectors, plus the connector's request, tick,
// broker and database pool metrics. Handler serves it in the Prometheus
// exposition format.
package metrics

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "connector"

// Registry holds the connector metrics.
type Registry struct {
	prom *prometheus.Registry

	APIRequests       *prometheus.CounterVec
	APIDuration       *prometheus.HistogramVec
	TelemetryTicks    *prometheus.CounterVec
	TelemetryDuration *prometheus.HistogramVec
	BrokerConnected   prometheus.Gauge
	QueryItems        *prometheus.GaugeVec
}

// NewRegistry creates a registry with all connector metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		prom: prometheus.NewRegistry(),

		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of query endpoint requests",
			},
			[]string{"endpoint", "status"},
		),

		APIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Query endpoint request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		TelemetryTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "ticks_total",
				Help:      "Total number of telemetry ticks by result",
			},
			[]string{"source", "result"},
		),

		TelemetryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "tick_duration_seconds",
				Help:      "Telemetry tick duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		QueryItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "items",
				Help:      "Number of registered query items by mode",
			},
			[]string{"mode"},
		),
	}

	r.prom.MustRegister(
		r.APIRequests,
		r.APIDuration,
		r.TelemetryTicks,
		r.TelemetryDuration,
		r.BrokerConnected,
		r.QueryItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// RegisterDB adds connection pool statistics for db.
func (r *Registry) RegisterDB(db *sql.DB, name string) error {
	if err := r.prom.Register(collectors.NewDBStatsCollector(db, name)); err != nil {
		return fmt.Errorf("registering db stats collector: %w", err)
	}
	return nil
}

// ObserveTick records a telemetry tick outcome.
func (r *Registry) ObserveTick(source, result string, duration time.Duration) {
	r.TelemetryTicks.WithLabelValues(source, result).Inc()
	r.TelemetryDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRequest records a query endpoint request.
func (r *Registry) ObserveRequest(endpoint string, status int, duration time.Duration) {
	r.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	r.APIDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBrokerConnected updates the broker connection gauge.
func (r *Registry) SetBrokerConnected(connected bool) {
	if connected {
		r.BrokerConnected.Set(1)
		return
	}
	r.BrokerConnected.Set(0)
}

// SetQueryItems records how many items are registered for mode.
func (r *Registry) SetQueryItems(mode string, count int) {
	r.QueryItems.WithLabelValues(mode).Set(float64(count))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
