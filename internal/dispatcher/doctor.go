package dispatcher

import (
	"context"
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

// Driver is the external diagnostic-CLI contract (SPEC_FULL.md §4.8.3,
// non-normative per spec.md §9 Open Question 2). A concrete driver spawns a
// codex-style subprocess over a JSON line protocol, threading a persistent
// session id into resume calls. No concrete implementation ships in this
// module — the shell subprocess runner is out of scope.
type Driver interface {
	// Start begins a diagnostic session and returns its driver-assigned id.
	Start(ctx context.Context) (driverSessionID string, output string, err error)
	// Send continues an existing diagnostic session.
	Send(ctx context.Context, driverSessionID, note string) (output string, err error)
	// Status reports the driver session's current state.
	Status(ctx context.Context, driverSessionID string) (output string, err error)
	// Cancel ends a diagnostic session.
	Cancel(ctx context.Context, driverSessionID string) error
}

// startDoctorLifecycle handles the "/doctor [note|status|cancel|resume]"
// sub-states. The doctor task is tracked in doctorTasks and mirrored into
// activeTasks so /stop covers it.
func (d *Dispatcher) startDoctorLifecycle(parent context.Context, msg models.InboundMessage) {
	sessionKey := msg.SessionKey()

	ctx, cancel := context.WithCancel(parent)
	taskID := d.registerTask(sessionKey, cancel)
	d.tasksMu.Lock()
	d.doctorTasks[sessionKey] = cancel
	d.tasksMu.Unlock()
	defer func() {
		cancel()
		d.unregisterTask(sessionKey, taskID)
		d.tasksMu.Lock()
		delete(d.doctorTasks, sessionKey)
		d.tasksMu.Unlock()
	}()

	session := d.store.Get(sessionKey)
	fields := strings.Fields(msg.Content)
	subcommand := "start"
	if len(fields) > 1 {
		subcommand = strings.ToLower(fields[1])
	}

	var out string
	switch subcommand {
	case "status":
		out = d.doctorStatus(ctx, session)
	case "cancel":
		out = d.doctorCancel(ctx, session)
	case "resume":
		out = d.doctorResume(ctx, session, strings.Join(fields[2:], " "))
	default: // "start", "note", or bare "/doctor"
		out = d.doctorStart(ctx, session)
	}

	_ = d.store.Save(session)
	d.busIn.PublishOutbound(models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: out, RunID: msg.RunID, TurnID: msg.TurnID})
}

func (d *Dispatcher) doctorStart(ctx context.Context, session *models.Session) string {
	session.Metadata.DoctorMode = true
	if d.doctorDriver == nil {
		return "Doctor mode enabled (fallback path: using the normal provider with a diagnostic preamble)."
	}
	id, out, err := d.doctorDriver.Start(ctx)
	if err != nil {
		return "Doctor mode enabled, but the external diagnostic driver failed to start: " + err.Error()
	}
	session.Metadata.DoctorCodexSessionID = id
	return out
}

func (d *Dispatcher) doctorStatus(ctx context.Context, session *models.Session) string {
	if d.doctorDriver == nil || session.Metadata.DoctorCodexSessionID == "" {
		if session.Metadata.DoctorMode {
			return "Doctor mode is active (fallback path)."
		}
		return "Doctor mode is not active."
	}
	out, err := d.doctorDriver.Status(ctx, session.Metadata.DoctorCodexSessionID)
	if err != nil {
		return "Doctor status check failed: " + err.Error()
	}
	return out
}

func (d *Dispatcher) doctorCancel(ctx context.Context, session *models.Session) string {
	if d.doctorDriver != nil && session.Metadata.DoctorCodexSessionID != "" {
		_ = d.doctorDriver.Cancel(ctx, session.Metadata.DoctorCodexSessionID)
	}
	session.Metadata.DoctorMode = false
	session.Metadata.DoctorCodexSessionID = ""
	return "Doctor mode cancelled."
}

func (d *Dispatcher) doctorResume(ctx context.Context, session *models.Session, note string) string {
	session.Metadata.DoctorMode = true
	if d.doctorDriver == nil || session.Metadata.DoctorCodexSessionID == "" {
		return "Resumed doctor mode (fallback path)."
	}
	out, err := d.doctorDriver.Send(ctx, session.Metadata.DoctorCodexSessionID, note)
	if err != nil {
		return "Doctor resume failed: " + err.Error()
	}
	return out
}
