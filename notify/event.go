package notify

// EventType names a controller lifecycle transition.
type EventType string

const (
	EventBound       EventType = "bound"
	EventActivated   EventType = "activated"
	EventDeactivated EventType = "deactivated"
	EventTornDown    EventType = "torn_down"
)

// Event is emitted to the controller's observer after each transition. It is
// the public contract consumed by sinks.
type Event struct {
	ID           string    `json:"id"`
	ControllerID string    `json:"controller_id"`
	Type         EventType `json:"type"`
	Active       bool      `json:"active"`
	Title        string    `json:"title,omitempty"`
	Timestamp    int64     `json:"timestamp"` // epoch milliseconds
}
