package health

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Aggregator runs a registered set of Probers concurrently under a shared
// timeout and folds their Evidence into a Snapshot. Grounded on the
// teacher's internal/commands/health.go HealthChecker: probers registered by
// name, probed via a WaitGroup + mutex-guarded result slice, defaulted to a
// 10s budget.
type Aggregator struct {
	mu      sync.RWMutex
	probers []Prober
	timeout time.Duration

	gaugeMu sync.Mutex
	gauges  *prometheusGauges
}

// DefaultTimeout matches the teacher's DefaultHealthCheckerConfig.TimeoutMs.
const DefaultTimeout = 10 * time.Second

// NewAggregator constructs an Aggregator with no probers registered. Call
// Register for each component before the first Collect.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{timeout: timeout}
}

// Register adds a Prober. Safe to call concurrently with Collect; the next
// Collect call picks up newly registered probers.
func (a *Aggregator) Register(p Prober) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probers = append(a.probers, p)
}

// Collect probes every registered component concurrently and returns the
// combined Snapshot. A Prober that doesn't return before the aggregator's
// timeout is recorded as StatusUnknown rather than blocking Collect forever.
func (a *Aggregator) Collect(ctx context.Context) Snapshot {
	a.mu.RLock()
	probers := make([]Prober, len(a.probers))
	copy(probers, a.probers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	evidence := make([]Evidence, len(probers))
	var wg sync.WaitGroup
	for i, p := range probers {
		wg.Add(1)
		go func(i int, p Prober) {
			defer wg.Done()
			done := make(chan Evidence, 1)
			go func() { done <- p.Probe(ctx) }()
			select {
			case e := <-done:
				evidence[i] = e
			case <-ctx.Done():
				evidence[i] = Evidence{
					Component: p.Component(),
					Status:    StatusUnknown,
					Summary:   "probe timed out",
				}
			}
		}(i, p)
	}
	wg.Wait()

	snap := buildSnapshot(time.Now(), evidence)
	a.updateGauges(snap)
	return snap
}

// prometheusGauges mirrors the JSON snapshot's liveness/readiness/degraded
// fields as gauges, so a scrape and a health-check call agree on the numbers
// in flight — SPEC_FULL.md §4.10's "shares numbers with the JSON surface"
// requirement.
type prometheusGauges struct {
	liveness  prometheus.Gauge
	readiness prometheus.Gauge
	degraded  prometheus.Gauge
	component *prometheus.GaugeVec
}

// ExportPrometheus registers gauges for liveness/readiness/degraded plus a
// per-component status gauge against a caller-owned registry. Subsequent
// Collect calls update them; Collect works fine without ever calling this.
func (a *Aggregator) ExportPrometheus(reg *prometheus.Registry) {
	a.gaugeMu.Lock()
	defer a.gaugeMu.Unlock()
	g := &prometheusGauges{
		liveness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_health_liveness",
			Help: "Liveness status (0=ok,1=unknown,2=degraded,3=failed).",
		}),
		readiness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_health_readiness",
			Help: "Readiness status (0=ok,1=unknown,2=degraded,3=failed).",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_health_degraded",
			Help: "1 if any component reports degraded, else 0.",
		}),
		component: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loom_health_component_status",
			Help: "Per-component status (0=ok,1=unknown,2=degraded,3=failed).",
		}, []string{"component"}),
	}
	reg.MustRegister(g.liveness, g.readiness, g.degraded, g.component)
	a.gauges = g
}

func (a *Aggregator) updateGauges(snap Snapshot) {
	a.gaugeMu.Lock()
	g := a.gauges
	a.gaugeMu.Unlock()
	if g == nil {
		return
	}
	g.liveness.Set(float64(snap.Liveness))
	g.readiness.Set(float64(snap.Readiness))
	if snap.Degraded {
		g.degraded.Set(1)
	} else {
		g.degraded.Set(0)
	}
	for _, e := range snap.Evidence {
		g.component.WithLabelValues(e.Component).Set(float64(e.Status))
	}
}
