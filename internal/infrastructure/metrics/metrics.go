// Package metrics exposes Prometheus collectors for the HTTP API, allocations and offline replay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/offline"
)

const namespace = "depotstock"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	allocations       *prometheus.CounterVec
	allocatedQuantity *prometheus.CounterVec
	conflictRetries   *prometheus.CounterVec
	replays           *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Per-item allocations by kind and outcome code.",
		}, []string{"kind", "outcome"}),
		allocatedQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocated_units_total",
			Help:      "Units drawn from batches by kind.",
		}, []string{"kind"}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_conflict_retries_total",
			Help:      "Read-compute-write cycles re-run after a concurrent modification.",
		}, []string{"kind"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_replays_total",
			Help:      "Offline queue requests by replay outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.allocations, m.allocatedQuantity, m.conflictRetries, m.replays,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// AllocationCommitted implements allocation.Metrics.
func (m *Metrics) AllocationCommitted(kind string, qty types.Quantity) {
	m.allocations.WithLabelValues(kind, "committed").Inc()
	m.allocatedQuantity.WithLabelValues(kind).Add(float64(qty))
}

// AllocationFailed implements allocation.Metrics.
func (m *Metrics) AllocationFailed(kind, code string) {
	m.allocations.WithLabelValues(kind, code).Inc()
}

// ConflictRetried implements allocation.Metrics.
func (m *Metrics) ConflictRetried(kind string) {
	m.conflictRetries.WithLabelValues(kind).Inc()
}

// Replayed implements offline.Metrics.
func (m *Metrics) Replayed(outcome string) {
	m.replays.WithLabelValues(outcome).Inc()
}

var (
	_ allocation.Metrics = (*Metrics)(nil)
	_ offline.Metrics    = (*Metrics)(nil)
)
