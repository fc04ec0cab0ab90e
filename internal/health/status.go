// Package health implements the runtime health surface described by
// SPEC_FULL.md §4.10: a status lattice over named components, combined into
// liveness/readiness/degraded snapshot fields, with an optional Prometheus
// gauge export sharing numbers with the JSON surface.
//
// Grounded on original_source/snapagent/observability/health.py's
// HealthEvidence/HealthSnapshot shape and _worst combinator, and on the
// teacher's internal/commands/health.go ChannelProber/HealthChecker
// registration idiom (probers registered by name, probed concurrently with a
// shared timeout).
package health

import "encoding/json"

// Status is a point on the four-value health lattice. The zero value is
// StatusOK so a freshly-constructed Evidence defaults to healthy rather than
// unknown, matching how most probers build up their result.
type Status int

const (
	StatusOK Status = iota
	StatusUnknown
	StatusDegraded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusOK:       "ok",
	StatusUnknown:  "unknown",
	StatusDegraded: "degraded",
	StatusFailed:   "failed",
}

var statusValues = map[string]Status{
	"ok":       StatusOK,
	"unknown":  StatusUnknown,
	"degraded": StatusDegraded,
	"failed":   StatusFailed,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON renders Status as its lowercase name so the JSON health
// surface reads "ok"/"degraded"/... rather than a bare integer.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusValues[name]; ok {
		*s = v
		return nil
	}
	*s = StatusUnknown
	return nil
}

// Worst returns whichever of a, b is further along the ok < unknown <
// degraded < failed lattice — the combinator every multi-component rollup in
// this package uses.
func Worst(a, b Status) Status {
	if a >= b {
		return a
	}
	return b
}

// criticalComponents gate readiness: any of them failing or degraded drags
// readiness down even if every other component is fine.
var criticalComponents = map[string]bool{
	"config":   true,
	"workspace": true,
	"provider": true,
}

// livenessComponents gate liveness, a strictly narrower set than readiness —
// a misconfigured provider shouldn't make the process report itself dead.
var livenessComponents = map[string]bool{
	"config":    true,
	"workspace": true,
}
