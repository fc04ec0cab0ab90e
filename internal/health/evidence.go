package health

import "time"

// Evidence is one component's contribution to a Snapshot.
type Evidence struct {
	Component string         `json:"component"`
	Status    Status         `json:"status"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
}

// Snapshot is the full health surface returned by Collect. Liveness answers
// "is the process itself intact" (config + workspace only); Readiness
// answers "can this process usefully serve turns" (the critical component
// set, widened by any degraded/failed evidence at all once the critical set
// is clean); Degraded is true if anything, critical or not, reported
// degraded.
type Snapshot struct {
	Liveness    Status     `json:"liveness"`
	Readiness   Status     `json:"readiness"`
	Degraded    bool       `json:"degraded"`
	GeneratedAt time.Time  `json:"generated_at"`
	Evidence    []Evidence `json:"evidence"`
}

// buildSnapshot folds a flat evidence list into the liveness/readiness/
// degraded rollup, following original_source/snapagent/observability/
// health.py's collect_health_snapshot exactly: liveness only looks at
// config+workspace; readiness starts from the critical set and then, if
// still ok, picks up the first non-ok status from anywhere.
func buildSnapshot(now time.Time, evidence []Evidence) Snapshot {
	liveness := StatusOK
	readiness := StatusOK

	for _, e := range evidence {
		if livenessComponents[e.Component] {
			liveness = Worst(liveness, e.Status)
		}
		if criticalComponents[e.Component] {
			readiness = Worst(readiness, e.Status)
		}
	}
	if readiness == StatusOK {
		for _, e := range evidence {
			if e.Status != StatusOK {
				readiness = e.Status
				break
			}
		}
	}

	degraded := false
	for _, e := range evidence {
		if e.Status == StatusDegraded {
			degraded = true
			break
		}
	}

	return Snapshot{
		Liveness:    liveness,
		Readiness:   readiness,
		Degraded:    degraded,
		GeneratedAt: now,
		Evidence:    evidence,
	}
}
