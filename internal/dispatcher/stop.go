package dispatcher

import (
	"fmt"

	"github.com/haasonsaas/loom/pkg/models"
)

// stopSession implements SPEC_FULL.md §4.8.2: cancel every active task for
// sessionKey (including the doctor task, if any), drain queued progress
// frames, and report how many tasks were stopped.
func (d *Dispatcher) stopSession(msg models.InboundMessage) {
	sessionKey := msg.SessionKey()

	d.tasksMu.Lock()
	tasks := d.activeTasks[sessionKey]
	delete(d.activeTasks, sessionKey)
	delete(d.doctorTasks, sessionKey)
	d.tasksMu.Unlock()

	for _, h := range tasks {
		h.cancel()
	}

	var out string
	if len(tasks) == 0 {
		out = "No active task"
	} else {
		out = fmt.Sprintf("Stopped %d task(s)", len(tasks))
	}

	d.busIn.DrainProgress(msg.ChatID)
	d.busIn.PublishOutbound(models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: out})
}
