package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's per-(agent, operation) Prometheus
// instrumentation (Live Gateway State "Metrics" in spec.md §3).
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the gateway's counters and histogram against reg.
// Pass prometheus.NewRegistry() in tests to avoid collisions with the
// default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp_gateway",
			Name:      "operations_total",
			Help:      "Total gateway operations by agent, operation, and decision.",
		}, []string{"agent_id", "operation", "decision"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcp_gateway",
			Name:      "operation_latency_ms",
			Help:      "Gateway operation latency in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"agent_id", "operation"}),
	}
	reg.MustRegister(m.calls, m.latency)
	return m
}

// Observe records one audit record's outcome into the counters/histogram.
func (m *Metrics) Observe(rec Record) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(rec.AgentID, rec.Operation, rec.Decision).Inc()
	m.latency.WithLabelValues(rec.AgentID, rec.Operation).Observe(rec.LatencyMs)
}
