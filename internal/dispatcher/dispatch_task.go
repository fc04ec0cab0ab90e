package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/loom/internal/agent"
	promptctx "github.com/haasonsaas/loom/internal/context"
	"github.com/haasonsaas/loom/internal/sessions"
	"github.com/haasonsaas/loom/pkg/models"
)

const planModePreamble = "[Plan Mode] First clarify requirements if needed, then present a structured plan and WAIT for approval before taking any action.\n\n"
const doctorModePreamble = "[Doctor Mode] Diagnose the runtime's own health before answering; surface any degraded or failed component explicitly.\n\n"

var helpText = strings.Join([]string{
	"/stop - cancel the current turn",
	"/new - archive this conversation to long-term memory and start fresh",
	"/help - show this message",
	"/plan - enter plan mode (propose a plan, wait for approval)",
	"/normal - leave plan mode",
	"/doctor [note|status|cancel|resume] - runtime diagnostics",
}, "\n")

// dispatchTask implements SPEC_FULL.md §4.8.1's ten numbered steps for one
// inbound message.
func (d *Dispatcher) dispatchTask(parent context.Context, msg models.InboundMessage) {
	sessionKey := msg.SessionKey()
	d.setProcessing(sessionKey, true)
	defer d.setProcessing(sessionKey, false)

	unlock := d.turnLock(sessionKey)
	defer unlock()

	ctx, cancel := context.WithCancel(parent)
	taskID := d.registerTask(sessionKey, cancel)
	defer func() {
		cancel()
		d.unregisterTask(sessionKey, taskID)
	}()

	// Step 1: correlation.
	ensureCorrelation(&msg)

	// Step 2: system channel gets a minimal path — no slash commands, no
	// plan/doctor modes.
	if msg.Channel == models.ChannelSystem {
		d.runTurn(ctx, msg, msg.Content)
		return
	}

	session := d.store.Get(sessionKey)

	// Step 3: slash commands.
	if out, handled := d.handleSlashCommand(ctx, msg, session); handled {
		if out != "" {
			d.busIn.PublishOutbound(models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: out, RunID: msg.RunID, TurnID: msg.TurnID})
		}
		return
	}

	content := msg.Content

	// Step 4: plan mode.
	if session.Metadata.PlanMode {
		content = planModePreamble + content
	}

	// Step 5: doctor mode (slash commands already handled above, so this is
	// a plain message while doctor mode is active).
	if session.Metadata.DoctorMode {
		if d.doctorDriver != nil {
			out, err := d.doctorDriver.Send(ctx, session.Metadata.DoctorCodexSessionID, content)
			if err == nil {
				d.busIn.PublishOutbound(models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: out, RunID: msg.RunID, TurnID: msg.TurnID})
				return
			}
		}
		content = doctorModePreamble + content
	}

	// Step 6: background memory consolidation, never blocking the turn.
	if d.memory != nil && d.opts.MemoryWindow > 0 && len(session.Messages)-session.LastConsolidated >= d.opts.MemoryWindow {
		go func() {
			_ = d.memory.Consolidate(sessionKey, false)
		}()
	}

	d.runTurn(ctx, msg, content)
}

// handleSlashCommand handles /new, /help, /plan, /normal. It returns the
// text to publish (if any) and whether the command was recognized.
func (d *Dispatcher) handleSlashCommand(_ context.Context, msg models.InboundMessage, session *models.Session) (string, bool) {
	switch strings.ToLower(firstToken(msg.Content)) {
	case "/new":
		if d.memory != nil {
			_ = d.memory.Consolidate(session.Key, true)
		} else {
			_ = d.store.Clear(session.Key)
		}
		return "Started a new conversation. Prior context has been archived.", true
	case "/help":
		return helpText, true
	case "/plan":
		session.Metadata.PlanMode = true
		_ = d.store.Save(session)
		return "Plan mode enabled.", true
	case "/normal":
		session.Metadata.PlanMode = false
		_ = d.store.Save(session)
		return "Plan mode disabled.", true
	default:
		return "", false
	}
}

// runTurn implements steps 7-10: build context, run the orchestrator,
// persist, and publish.
func (d *Dispatcher) runTurn(ctx context.Context, msg models.InboundMessage, content string) {
	sessionKey := msg.SessionKey()

	var endSpan func(error)
	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, "dispatch.turn")
		d.tracer.SetAttributes(span, "session_key", sessionKey, "channel", string(msg.Channel))
		endSpan = func(err error) {
			d.tracer.RecordError(span, err)
			span.End()
		}
	} else {
		endSpan = func(error) {}
	}
	var turnErr error
	defer func() { endSpan(turnErr) }()

	session := d.store.Get(sessionKey)

	compressed := promptctx.Compress(session.Messages, promptctx.DefaultCompressorOptions())
	builder := promptctx.NewBuilder(d.layers)
	initialMessages := builder.BuildMessages(compressed.Messages, content, msg.Media, string(msg.Channel), msg.ChatID)

	execCtx := models.ExecContext{
		Channel:    string(msg.Channel),
		ChatID:     msg.ChatID,
		SessionKey: sessionKey,
		RunID:      msg.RunID,
		TurnID:     msg.TurnID,
	}
	beforeModel := func(messages []models.Message) []models.Message {
		if text, ok := d.busIn.CheckEvents(sessionKey); ok {
			messages = append(messages, models.Message{Role: models.RoleUser, Content: "[Interrupt] " + text})
		}
		return messages
	}
	beforeTool := func(_ []models.Message, _ int, _ []models.ToolCall) bool {
		return ctx.Err() != nil
	}
	onProgress := func(text string) {
		d.busIn.PublishOutbound(models.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Content:  text,
			Metadata: map[string]string{"_progress": "true"},
			RunID:    msg.RunID,
			TurnID:   msg.TurnID,
		})
	}

	loopOpts := d.opts.LoopOptions
	if d.opts.Model != "" {
		loopOpts.Model = d.opts.Model
	}
	loopOpts.Tracer = d.tracer

	result, err := agent.RunAgentLoop(ctx, d.client, d.tools, initialMessages, loopOpts, execCtx, onProgress, beforeModel, beforeTool)
	if err != nil {
		turnErr = err
		d.busIn.PublishOutbound(models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: fmt.Sprintf("Error: %v", err), RunID: msg.RunID, TurnID: msg.TurnID})
		return
	}

	// Step 9: persist the new turn, truncating oversized tool results and
	// redacting inline image data before it hits disk.
	newTurn := result.Messages[len(initialMessages):]
	newTurn = sessions.TruncateLongToolResults(newTurn, d.opts.MaxToolResultChars)
	newTurn = sessions.RedactImageParts(newTurn)
	session = d.store.Get(sessionKey)
	session.Append(models.Message{Role: models.RoleUser, Content: content})
	for _, m := range newTurn {
		session.Append(m)
	}
	_ = d.store.Save(session)

	d.busIn.DrainProgress(msg.ChatID)

	// Step 10: publish the final outbound message.
	d.busIn.PublishOutbound(models.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: result.FinalText,
		RunID:   msg.RunID,
		TurnID:  msg.TurnID,
	})

	// Drain any interrupt events that arrived after processing began and
	// re-queue them as a follow-up inbound message.
	if text, ok := d.busIn.CheckEvents(sessionKey); ok {
		d.busIn.PublishInbound(models.InboundMessage{
			Channel:            msg.Channel,
			ChatID:             msg.ChatID,
			SenderID:           msg.SenderID,
			Content:            text,
			SessionKeyOverride: msg.SessionKeyOverride,
		})
	}
}
