// Package metrics exposes Prometheus collectors for the orchestration engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	Runs         *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	Fallbacks    *prometheus.CounterVec
	Routes       *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askflow",
			Name:      "runs_total",
			Help:      "Completed workflow runs by terminal node.",
		}, []string{"outcome"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askflow",
			Name:      "node_duration_seconds",
			Help:      "Time spent inside each workflow node.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"node"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askflow",
			Name:      "fallbacks_total",
			Help:      "Stage fallbacks taken after a timeout, error or malformed output.",
		}, []string{"stage", "reason"}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askflow",
			Name:      "routes_total",
			Help:      "Routing decisions by selected source set.",
		}, []string{"sources"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askflow",
			Name:      "llm_cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.NodeDuration, m.Fallbacks, m.Routes, m.CacheLookups)
	}
	return m
}

// RunFinished counts a completed run.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

// ObserveNode records the latency of a node.
func (m *Metrics) ObserveNode(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// Fallback counts a stage falling back to its default.
func (m *Metrics) Fallback(stage, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(stage, reason).Inc()
}

// Route counts a routing decision.
func (m *Metrics) Route(sources string) {
	if m == nil {
		return
	}
	m.Routes.WithLabelValues(sources).Inc()
}

// CacheLookup counts a response cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
