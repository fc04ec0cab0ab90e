package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/loom/internal/agent"
	"github.com/haasonsaas/loom/internal/bus"
	"github.com/haasonsaas/loom/internal/config"
	promptctx "github.com/haasonsaas/loom/internal/context"
	"github.com/haasonsaas/loom/internal/dispatcher"
	"github.com/haasonsaas/loom/internal/health"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/sanitize"
	"github.com/haasonsaas/loom/internal/sessions"
	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
	"github.com/haasonsaas/loom/pkg/provider"
)

// runtime bundles every component buildRunCmd/buildHealthCmd need, plus a
// close func that flushes and releases whatever holds a file handle or
// background goroutine.
type runtime struct {
	bus        *bus.Bus
	dispatcher *dispatcher.Dispatcher
	sink       *observability.Sink
	health     *health.Aggregator
	registry   *prometheus.Registry
	logger     *observability.Logger
	tracer     *observability.Tracer
	close      func() error
}

// wireRuntime constructs every runtime component from rt, grounded on the
// teacher's cmd/nexus/main.go buildRootCmd/openMigrationDB style of
// composing internal packages directly in main rather than through a DI
// container.
func wireRuntime(rt config.Runtime, client provider.Client) (*runtime, error) {
	if err := rt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", err)
	}

	sink, err := observability.NewSink(observability.SinkConfig{
		Path:        rt.SinkPath,
		RotateBytes: rt.SinkRotateBytes,
		MaxBackups:  rt.SinkMaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("open observability sink: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  rt.LogLevel,
		Format: rt.LogFormat,
	})

	emit := func(event models.DiagnosticEvent) {
		_ = sink.Emit(event)
	}
	msgBus := bus.New(emit)

	store, err := sessions.NewFileStore(filepath.Join(rt.Workspace, "sessions"))
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	memory := sessions.NewConsolidator(store, filepath.Join(rt.Workspace, "memory"), nil, nil)
	registry := tools.NewRegistry()
	layers := promptctx.NewLayerRegistry()
	sanitizer := sanitize.Sanitizer{RestrictWorkspace: true, WorkspaceRoot: rt.Workspace}

	opts := dispatcher.DefaultOptions()
	opts.LockMode = dispatcher.LockMode(rt.LockMode)
	opts.MemoryWindow = rt.MemoryWindow
	opts.MaxToolResultChars = rt.MaxToolResultChars
	opts.Model = rt.Model
	opts.MaxTokens = rt.MaxTokens
	opts.Temperature = rt.Temperature
	opts.LoopOptions = agent.DefaultLoopOptions()
	opts.LoopOptions.MaxIterations = rt.MaxIterations
	opts.LoopOptions.Model = rt.Model
	opts.LoopOptions.MaxTokens = rt.MaxTokens
	opts.LoopOptions.Temperature = rt.Temperature

	// NewTracer returns a no-op tracer when Endpoint is empty, so this is
	// always safe to wire in: dispatch.turn and its child spans are only
	// ever exported once an OTLP endpoint is configured.
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "loom",
		Endpoint:    rt.OTLPEndpoint,
	})

	d := dispatcher.New(msgBus, store, memory, registry, client, layers, sanitizer, opts)
	d.SetTracer(tracer)

	reg := prometheus.NewRegistry()
	metrics := observability.NewRuntimeMetrics(reg)

	aggregator := health.NewAggregator(rt.HealthTimeout)
	aggregator.Register(health.WorkspaceProber{Path: rt.Workspace})
	aggregator.Register(health.ProviderProber{Client: client})
	aggregator.Register(health.RuntimeQueueProber{Inbound: msgBus.InboundDepth, Outbound: msgBus.OutboundDepth})
	aggregator.ExportPrometheus(reg)

	stopGauges := make(chan struct{})
	go pollQueueGauges(msgBus, metrics, stopGauges)

	return &runtime{
		bus:        msgBus,
		dispatcher: d,
		sink:       sink,
		health:     aggregator,
		registry:   reg,
		logger:     logger,
		tracer:     tracer,
		close: func() error {
			close(stopGauges)
			_ = shutdownTracer(context.Background())
			return sink.Close()
		},
	}, nil
}

// pollQueueGauges keeps loom_queue_depth current. Queue depth changes on
// every bus publish/consume, which live in a different package than the
// metrics registry, so this samples on an interval rather than threading a
// callback through the bus for what is, at steady state, a cheap mutex read.
func pollQueueGauges(b *bus.Bus, m *observability.RuntimeMetrics, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.QueueDepth.WithLabelValues("inbound").Set(float64(b.InboundDepth()))
			m.QueueDepth.WithLabelValues("outbound").Set(float64(b.OutboundDepth()))
		}
	}
}
