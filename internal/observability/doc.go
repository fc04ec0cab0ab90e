// Package observability provides the runtime's diagnostic sink, structured
// logging, Prometheus metrics, and distributed tracing.
//
// # Overview
//
// The package covers three concerns:
//
//  1. Logging - structured logs via slog, with sensitive-field redaction
//  2. Metrics - the turn/queue/tool-invocation gauges and counters named in
//     SPEC_FULL.md §4.11, registered against a caller-owned Prometheus
//     registry rather than the package-global default
//  3. Tracing - an OpenTelemetry tracer emitting the dispatch.turn span and
//     its child spans per §4.11
//
// None of these own configuration loading or transport: the runtime core
// has no channel adapters, no webhook ingestion, and no database layer, so
// there is nothing here shaped like per-channel or per-provider metrics.
//
// # Logging
//
// Logger wraps slog with level and format (text/json) selection and runs
// every log line through Redact before it reaches the handler, stripping
// values for keys that look like secrets (api_key, token, password, ...).
//
// # Metrics
//
// RuntimeMetrics holds exactly the series SPEC_FULL.md §4.11 requires:
// loom_queue_depth{queue}, loom_turn_duration_seconds,
// loom_tool_invocations_total{tool,outcome}, and loom_search_cap_hits_total.
// NewRuntimeMetrics takes a *prometheus.Registry explicitly; it never touches
// prometheus.DefaultRegisterer, so a host process can mount more than one
// runtime's metrics without collision and tests can assert isolation.
//
// # Tracing
//
// Tracer wraps the OpenTelemetry SDK with an OTLP/gRPC exporter. When no
// collector endpoint is configured, NewTracer returns a tracer backed by the
// global no-op provider so span calls are free no-ops rather than conditional
// branches scattered through callers.
//
// # Diagnostic sink
//
// Sink appends DiagnosticEvent records (pkg/models) as JSON lines to a file,
// rotating it once it crosses a configured size and keeping a bounded number
// of backups, per SPEC_FULL.md §4.9. The message bus is wired to emit a
// DiagnosticEvent through the sink on every publish and drop, including the
// dispatcher's own outbound replies, so a postmortem can replay exactly what
// the runtime saw without needing a live Prometheus scrape.
package observability
