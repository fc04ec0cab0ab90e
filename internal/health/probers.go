package health

import (
	"context"
	"os"

	"github.com/haasonsaas/loom/pkg/provider"
)

// Prober produces one Evidence entry. Implementations must return promptly;
// the Aggregator runs every Prober under a shared timeout and reports
// StatusUnknown for any that don't return in time.
type Prober interface {
	Component() string
	Probe(ctx context.Context) Evidence
}

// ConfigFileProber reports whether the runtime's config file is present.
// Config file *loading* is out of scope (SPEC_FULL.md non-goal), but the
// health surface still reports on the path the caller says it would load
// from, matching original_source's config-component evidence.
type ConfigFileProber struct {
	Path string
}

func (p ConfigFileProber) Component() string { return "config" }

func (p ConfigFileProber) Probe(context.Context) Evidence {
	_, err := os.Stat(p.Path)
	if err != nil {
		return Evidence{
			Component: "config",
			Status:    StatusFailed,
			Summary:   "config file not found",
			Details:   map[string]any{"path": p.Path},
		}
	}
	return Evidence{
		Component: "config",
		Status:    StatusOK,
		Summary:   "config file found",
		Details:   map[string]any{"path": p.Path},
	}
}

// WorkspaceProber reports whether the workspace directory exists and is a
// directory, mirroring original_source's workspace-component evidence.
type WorkspaceProber struct {
	Path string
}

func (p WorkspaceProber) Component() string { return "workspace" }

func (p WorkspaceProber) Probe(context.Context) Evidence {
	info, err := os.Stat(p.Path)
	if err != nil {
		return Evidence{
			Component: "workspace",
			Status:    StatusFailed,
			Summary:   "workspace missing",
			Details:   map[string]any{"path": p.Path},
		}
	}
	if !info.IsDir() {
		return Evidence{
			Component: "workspace",
			Status:    StatusFailed,
			Summary:   "workspace path is not a directory",
			Details:   map[string]any{"path": p.Path},
		}
	}
	return Evidence{
		Component: "workspace",
		Status:    StatusOK,
		Summary:   "workspace exists",
		Details:   map[string]any{"path": p.Path},
	}
}

// ProviderProber reports on the injected LLM transport. The core never owns
// provider credentials (config/LLM transport loading is out of scope), so
// this can only attest to whether a client was wired at all; anything richer
// needs the caller's own provider package, which is free to implement
// Prober directly instead.
type ProviderProber struct {
	Client   provider.Client
	Name     string
}

func (p ProviderProber) Component() string { return "provider" }

func (p ProviderProber) Probe(context.Context) Evidence {
	if p.Client == nil {
		return Evidence{
			Component: "provider",
			Status:    StatusFailed,
			Summary:   "no provider client configured",
		}
	}
	name := p.Name
	if name == "" {
		name = "configured"
	}
	return Evidence{
		Component: "provider",
		Status:    StatusOK,
		Summary:   "provider client wired: " + name,
		Details:   map[string]any{"provider": name},
	}
}

// QueueDepthFunc returns the current inbound/outbound queue depths, e.g.
// bus.Bus.InboundDepth/OutboundDepth.
type QueueDepthFunc func() int

// RuntimeQueueProber reports on bus backpressure: ok under 50, degraded from
// 50, failed from 200 — exactly original_source's runtime.queue thresholds.
type RuntimeQueueProber struct {
	Inbound  QueueDepthFunc
	Outbound QueueDepthFunc
}

func (p RuntimeQueueProber) Component() string { return "runtime.queue" }

func (p RuntimeQueueProber) Probe(context.Context) Evidence {
	if p.Inbound == nil && p.Outbound == nil {
		return Evidence{
			Component: "runtime.queue",
			Status:    StatusUnknown,
			Summary:   "runtime queue metrics unavailable",
		}
	}
	inbound, outbound := 0, 0
	if p.Inbound != nil {
		inbound = p.Inbound()
	}
	if p.Outbound != nil {
		outbound = p.Outbound()
	}
	peak := inbound
	if outbound > peak {
		peak = outbound
	}
	status := StatusOK
	switch {
	case peak >= 200:
		status = StatusFailed
	case peak >= 50:
		status = StatusDegraded
	}
	return Evidence{
		Component: "runtime.queue",
		Status:    status,
		Summary:   "queue depths observed",
		Details:   map[string]any{"inbound": inbound, "outbound": outbound},
	}
}

// ChannelRequiredFields lists the credential-shaped fields each channel
// needs to be considered configured. Channel adapters themselves are out of
// scope, but a caller that does wire one up (e.g. a companion repo) can feed
// this table into a ChannelProber to get the same misconfiguration surface
// original_source reports.
var ChannelRequiredFields = map[string][]string{
	"telegram": {"token"},
	"discord":  {"token"},
	"slack":    {"bot_token", "app_token"},
	"feishu":   {"app_id", "app_secret"},
}

// ChannelProber reports whether a named channel's declared config fields are
// present. Fields is the result of the caller resolving ChannelRequiredFields
// against its own config; the core never parses channel config itself.
type ChannelProber struct {
	Name     string
	Enabled  bool
	Fields   map[string]string
	Required []string
}

func (p ChannelProber) Component() string { return "channel." + p.Name }

func (p ChannelProber) Probe(context.Context) Evidence {
	if !p.Enabled {
		return Evidence{
			Component: "channel." + p.Name,
			Status:    StatusOK,
			Summary:   "channel not enabled",
		}
	}
	var missing []string
	for _, field := range p.Required {
		if p.Fields[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Evidence{
			Component: "channel." + p.Name,
			Status:    StatusFailed,
			Summary:   "channel enabled but misconfigured",
			Details:   map[string]any{"missing": missing},
		}
	}
	return Evidence{
		Component: "channel." + p.Name,
		Status:    StatusOK,
		Summary:   "channel configured",
	}
}
