package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry so tests can build as many as they need.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Auto-save metrics
	AutosaveSaves       *prometheus.CounterVec
	AutosaveTransitions *prometheus.CounterVec
	EditorSessions      prometheus.Gauge

	// Dashboard metrics
	GraphsShared  prometheus.Counter
	ContactsAdded prometheus.Counter
}

// NewCollector creates a metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of persistent store operations",
			},
			[]string{"kind", "operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Persistent store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),
		AutosaveSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autosave_saves_total",
				Help:      "Persistence calls issued by auto-save controllers",
			},
			[]string{"operation", "status"},
		),
		AutosaveTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autosave_transitions_total",
				Help:      "Auto-save controller state transitions",
			},
			[]string{"from", "to"},
		),
		EditorSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "editor_sessions_active",
				Help:      "Number of open editor sessions",
			},
		),
		GraphsShared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphs_shared_total",
				Help:      "Total number of graph snapshots shared",
			},
		),
		ContactsAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contacts_added_total",
				Help:      "Total number of contacts added",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.AutosaveSaves,
		c.AutosaveTransitions,
		c.EditorSessions,
		c.GraphsShared,
		c.ContactsAdded,
	)

	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records a completed store call.
func (c *Collector) RecordStoreOperation(kind, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.StoreOperations.WithLabelValues(kind, operation, status).Inc()
	c.StoreDuration.WithLabelValues(kind, operation).Observe(duration.Seconds())
}

// RecordAutosave records the outcome of one auto-save persistence call.
func (c *Collector) RecordAutosave(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.AutosaveSaves.WithLabelValues(operation, status).Inc()
}

// RecordTransition records a controller state change.
func (c *Collector) RecordTransition(from, to string) {
	c.AutosaveTransitions.WithLabelValues(from, to).Inc()
}
