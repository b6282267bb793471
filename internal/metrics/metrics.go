// Package metrics exposes Prometheus counters for catalog administration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation results used as the "result" label.
const (
	ResultSuccess      = "success"
	ResultInvalid      = "invalid"
	ResultUnauthorized = "unauthorized"
	ResultRejected     = "rejected"
	ResultError        = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	Operations        *prometheus.CounterVec
	OrphanedArtifacts prometheus.Counter
}

// New creates the collectors and registers them with Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_admin_operations_total",
			Help: "Product administration operations by outcome.",
		}, []string{"operation", "result"}),
		OrphanedArtifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_orphaned_artifacts_total",
			Help: "Stored images left behind after a failed cleanup.",
		}),
	}
	m.Registry.MustRegister(
		m.Operations,
		m.OrphanedArtifacts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe counts one operation with the given result.
func (m *Metrics) Observe(operation, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}

// Orphaned counts n artifacts that could not be removed.
func (m *Metrics) Orphaned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrphanedArtifacts.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
