package engine

import (
	"time"

	"opsbridge/console/internal/status"
)

// Event is one lifecycle notification emitted while an execution runs.
// Console clients subscribe to these instead of polling.
type Event struct {
	Type      string        `json:"type"` // execution.started, branch.started, branch.finished, action.finished, execution.finished
	ID        string        `json:"id"`   // hierarchical identifier of the subject
	Status    status.Status `json:"status"`
	Target    string        `json:"target,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier receives engine events. The API layer plugs its websocket hub
// in here; a nil notifier disables eventing.
type Notifier interface {
	Notify(event Event)
}

func (c *Coordinator) notify(eventType, id string, st status.Status, target string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Event{
		Type:      eventType,
		ID:        id,
		Status:    st,
		Target:    target,
		Timestamp: time.Now(),
	})
}
