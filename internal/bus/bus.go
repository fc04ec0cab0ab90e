// Package bus provides the unbounded FIFO inbound/outbound queues and
// per-session interrupt queues that decouple channel adapters from the
// session dispatcher. Publish never blocks: every queue is a mutex-guarded
// slice, not a bounded buffered channel.
package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/haasonsaas/loom/pkg/models"
)

// DiagnosticEmitter receives a best-effort event for every publish. A nil
// emitter is valid; emitter failures (panics aside) must never affect
// message flow, so Bus swallows whatever the callback does with the event.
type DiagnosticEmitter func(event models.DiagnosticEvent)

// Bus is the message bus described by the runtime's component design: FIFO
// inbound/outbound queues plus one interrupt queue per session key.
type Bus struct {
	emit DiagnosticEmitter

	inMu   sync.Mutex
	inCond *sync.Cond
	in     []models.InboundMessage

	outMu   sync.Mutex
	outCond *sync.Cond
	out     []models.OutboundMessage

	evMu   sync.Mutex
	events map[string][]string
}

// New constructs a Bus. emitter may be nil.
func New(emitter DiagnosticEmitter) *Bus {
	b := &Bus{
		emit:   emitter,
		events: make(map[string][]string),
	}
	b.inCond = sync.NewCond(&b.inMu)
	b.outCond = sync.NewCond(&b.outMu)
	return b
}

func (b *Bus) safeEmit(name string, attrs map[string]any) {
	if b.emit == nil {
		return
	}
	defer func() { _ = recover() }()
	b.emit(models.DiagnosticEvent{
		Name:      name,
		Component: "bus",
		Severity:  models.SeverityInfo,
		Attrs:     attrs,
	})
}

// PublishInbound appends msg to the inbound queue and wakes one waiting
// consumer. It never blocks.
func (b *Bus) PublishInbound(msg models.InboundMessage) {
	b.inMu.Lock()
	b.in = append(b.in, msg)
	b.inMu.Unlock()
	b.inCond.Signal()

	b.safeEmit("inbound.received", map[string]any{
		"channel": string(msg.Channel),
		"chat_id": msg.ChatID,
		"run_id":  msg.RunID,
	})
}

// ConsumeInbound blocks until a message is available or ctx is done. The
// bool is false only when ctx ended first.
func (b *Bus) ConsumeInbound(ctx context.Context) (models.InboundMessage, bool) {
	return consume(ctx, &b.inMu, b.inCond, &b.in)
}

// PublishOutbound appends msg to the outbound queue and wakes one waiting
// consumer. It never blocks.
func (b *Bus) PublishOutbound(msg models.OutboundMessage) {
	b.outMu.Lock()
	b.out = append(b.out, msg)
	b.outMu.Unlock()
	b.outCond.Signal()

	b.safeEmit("outbound.published", map[string]any{
		"channel": string(msg.Channel),
		"chat_id": msg.ChatID,
		"run_id":  msg.RunID,
	})
}

// ConsumeOutbound blocks until a message is available or ctx is done.
func (b *Bus) ConsumeOutbound(ctx context.Context) (models.OutboundMessage, bool) {
	return consume(ctx, &b.outMu, b.outCond, &b.out)
}

// consume is the generic growable-queue wait loop shared by the inbound and
// outbound sides: wait on cond while the queue is empty and ctx is live, pop
// the head once non-empty. A background goroutine broadcasts on ctx
// cancellation so blocked waiters wake promptly.
func consume[T any](ctx context.Context, mu *sync.Mutex, cond *sync.Cond, queue *[]T) (T, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-done:
		}
	}()

	mu.Lock()
	defer mu.Unlock()
	for len(*queue) == 0 {
		if ctx.Err() != nil {
			var zero T
			return zero, false
		}
		cond.Wait()
	}
	if ctx.Err() != nil {
		var zero T
		return zero, false
	}
	msg := (*queue)[0]
	*queue = (*queue)[1:]
	return msg, true
}

// PublishEvent appends text to sessionKey's interrupt queue, creating it on
// first use.
func (b *Bus) PublishEvent(sessionKey, text string) {
	b.evMu.Lock()
	b.events[sessionKey] = append(b.events[sessionKey], text)
	b.evMu.Unlock()

	b.safeEmit("session.event.published", map[string]any{"session_key": sessionKey})
}

// CheckEvents drains sessionKey's interrupt queue, returning the accumulated
// items joined as newline-separated "- " bullets, or ok=false if empty.
func (b *Bus) CheckEvents(sessionKey string) (string, bool) {
	b.evMu.Lock()
	items := b.events[sessionKey]
	delete(b.events, sessionKey)
	b.evMu.Unlock()

	if len(items) == 0 {
		return "", false
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String(), true
}

// DrainProgress removes every queued outbound message for chatID whose
// metadata marks it as a progress frame, preserving the order of survivors.
func (b *Bus) DrainProgress(chatID string) {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	kept := b.out[:0:0]
	for _, msg := range b.out {
		if msg.ChatID == chatID && msg.IsProgress() {
			continue
		}
		kept = append(kept, msg)
	}
	b.out = kept
}

// InboundDepth reports the current inbound queue length, used by the health
// aggregator and the loom_queue_depth{queue="inbound"} gauge.
func (b *Bus) InboundDepth() int {
	b.inMu.Lock()
	defer b.inMu.Unlock()
	return len(b.in)
}

// OutboundDepth reports the current outbound queue length, used by the
// health aggregator and the loom_queue_depth{queue="outbound"} gauge.
func (b *Bus) OutboundDepth() int {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	return len(b.out)
}
