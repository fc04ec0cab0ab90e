// Package dispatcher implements the per-session turn coordinator: it reads
// inbound messages off the bus, serializes turns under a configurable lock,
// handles slash commands, builds prompts, drives the reason-act orchestrator,
// and persists and publishes the result.
package dispatcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/internal/agent"
	promptctx "github.com/haasonsaas/loom/internal/context"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/sanitize"
	"github.com/haasonsaas/loom/internal/sessions"
	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
	"github.com/haasonsaas/loom/pkg/provider"
)

// LockMode selects how turns are serialized across sessions.
type LockMode string

const (
	LockGlobal     LockMode = "global"
	LockPerSession LockMode = "per-session"
)

// Options configures a Dispatcher.
type Options struct {
	LockMode           LockMode
	MemoryWindow       int // messages since LastConsolidated before a background consolidation fires
	MaxToolResultChars int // persisted tool message truncation threshold
	Model              string
	MaxTokens          int
	Temperature        float64
	LoopOptions        agent.LoopOptions
}

// DefaultOptions matches the source's conservative defaults: a single
// process-wide lock, a 20-message consolidation window, and 500-char tool
// result truncation.
func DefaultOptions() Options {
	return Options{
		LockMode:           LockGlobal,
		MemoryWindow:       20,
		MaxToolResultChars: 500,
		MaxTokens:          4096,
		Temperature:        0.7,
		LoopOptions:        agent.DefaultLoopOptions(),
	}
}

// Dispatcher is the session-turn coordinator described in SPEC_FULL.md §4.8.
type Dispatcher struct {
	busIn   InboundBus
	store   sessions.Store
	memory  *sessions.Consolidator
	tools   *tools.Registry
	client  provider.Client
	layers  *promptctx.LayerRegistry
	sanit   sanitize.Sanitizer
	opts    Options

	globalLock   sync.Mutex
	sessionLocks sync.Map // string -> *sync.Mutex

	tasksMu     sync.Mutex
	activeTasks map[string][]taskHandle
	doctorTasks map[string]context.CancelFunc
	processing  map[string]bool

	doctorDriver Driver
	tracer       *observability.Tracer
}

// InboundBus is the subset of *bus.Bus the dispatcher depends on, so tests
// can substitute a fake.
type InboundBus interface {
	ConsumeInbound(ctx context.Context) (models.InboundMessage, bool)
	PublishInbound(msg models.InboundMessage)
	PublishOutbound(msg models.OutboundMessage)
	PublishEvent(sessionKey, text string)
	CheckEvents(sessionKey string) (string, bool)
	DrainProgress(chatID string)
}

// New builds a Dispatcher. layers may be nil (empty prompt).
func New(busIn InboundBus, store sessions.Store, memory *sessions.Consolidator, registry *tools.Registry, client provider.Client, layers *promptctx.LayerRegistry, sanit sanitize.Sanitizer, opts Options) *Dispatcher {
	if layers == nil {
		layers = promptctx.NewLayerRegistry()
	}
	return &Dispatcher{
		busIn:       busIn,
		store:       store,
		memory:      memory,
		tools:       registry,
		client:      client,
		layers:      layers,
		sanit:       sanit,
		opts:        opts,
		activeTasks: map[string][]taskHandle{},
		doctorTasks: map[string]context.CancelFunc{},
		processing:  map[string]bool{},
	}
}

// SetDoctorDriver wires an external diagnostic CLI driver (see doctor.go).
// Leaving it unset falls back to the normal provider path.
func (d *Dispatcher) SetDoctorDriver(driver Driver) {
	d.doctorDriver = driver
}

// SetTracer wires the tracer that opens the dispatch.turn span (SPEC_FULL.md
// §4.11) and is threaded into the reason-act orchestrator for its per-
// iteration and per-tool-call child spans. Leaving it unset means no spans
// are opened.
func (d *Dispatcher) SetTracer(tracer *observability.Tracer) {
	d.tracer = tracer
}

// Run is the dispatcher main loop: consume one inbound message at a time
// (1s poll so ctx cancellation is observed promptly) and route it.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pollCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, ok := d.busIn.ConsumeInbound(pollCtx)
		cancel()
		if !ok {
			continue
		}
		d.route(ctx, msg)
	}
}

func (d *Dispatcher) route(ctx context.Context, msg models.InboundMessage) {
	command := strings.ToLower(firstToken(msg.Content))
	switch {
	case command == "/stop":
		go d.stopSession(msg)
	case strings.HasPrefix(command, "/doctor"):
		go d.startDoctorLifecycle(ctx, msg)
	default:
		if d.isProcessing(msg.SessionKey()) {
			d.busIn.PublishEvent(msg.SessionKey(), msg.Content)
			return
		}
		go d.dispatchTask(ctx, msg)
	}
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (d *Dispatcher) isProcessing(sessionKey string) bool {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	return d.processing[sessionKey]
}

func (d *Dispatcher) setProcessing(sessionKey string, v bool) {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	if v {
		d.processing[sessionKey] = true
	} else {
		delete(d.processing, sessionKey)
	}
}

// taskHandle is a single registered cancellable task, identified by id so it
// can be removed from activeTasks without relying on CancelFunc identity
// (context.CancelFunc values aren't comparable).
type taskHandle struct {
	id     uint64
	cancel context.CancelFunc
}

var taskIDCounter uint64

func (d *Dispatcher) registerTask(sessionKey string, cancel context.CancelFunc) uint64 {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	taskIDCounter++
	id := taskIDCounter
	d.activeTasks[sessionKey] = append(d.activeTasks[sessionKey], taskHandle{id: id, cancel: cancel})
	return id
}

func (d *Dispatcher) unregisterTask(sessionKey string, id uint64) {
	d.tasksMu.Lock()
	defer d.tasksMu.Unlock()
	list := d.activeTasks[sessionKey]
	for i, h := range list {
		if h.id == id {
			d.activeTasks[sessionKey] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (d *Dispatcher) turnLock(sessionKey string) func() {
	if d.opts.LockMode == LockPerSession {
		lockAny, _ := d.sessionLocks.LoadOrStore(sessionKey, &sync.Mutex{})
		lock := lockAny.(*sync.Mutex)
		lock.Lock()
		return lock.Unlock
	}
	d.globalLock.Lock()
	return d.globalLock.Unlock
}

// ensureCorrelation assigns run_id/turn_id if absent and mirrors them into
// Metadata.
func ensureCorrelation(msg *models.InboundMessage) {
	if msg.RunID == "" {
		msg.RunID = uuid.NewString()
	}
	if msg.TurnID == "" {
		msg.TurnID = uuid.NewString()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	msg.Metadata["run_id"] = msg.RunID
	msg.Metadata["turn_id"] = msg.TurnID
}
