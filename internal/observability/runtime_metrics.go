package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RuntimeMetrics is the SPEC_FULL.md §4.11 gauge/counter set, registered
// against a caller-owned prometheus.Registry rather than the package-global
// default registry Metrics (in metrics.go) uses — the health aggregator and
// the dispatcher share one Registry instance so the same numbers back both
// the JSON health surface and a /metrics scrape.
type RuntimeMetrics struct {
	QueueDepth         *prometheus.GaugeVec
	TurnDuration       prometheus.Histogram
	ToolInvocations    *prometheus.CounterVec
	SearchCapHitsTotal prometheus.Counter
}

// NewRuntimeMetrics registers the runtime gauge/counter set against reg.
func NewRuntimeMetrics(reg *prometheus.Registry) *RuntimeMetrics {
	m := &RuntimeMetrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loom_queue_depth",
			Help: "Current depth of a runtime queue (inbound, outbound, per-session interrupt).",
		}, []string{"queue"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_turn_duration_seconds",
			Help:    "Wall-clock duration of one dispatched turn.",
			Buckets: prometheus.DefBuckets,
		}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_invocations_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		SearchCapHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_search_cap_hits_total",
			Help: "Times the per-turn search cap was hit.",
		}),
	}
	reg.MustRegister(m.QueueDepth, m.TurnDuration, m.ToolInvocations, m.SearchCapHitsTotal)
	return m
}
