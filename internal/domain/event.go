package domain

import "github.com/google/uuid"

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventStateChange  EventType = "state_change"
	EventError        EventType = "error"
	EventQueueChanged EventType = "queue_changed"
)

// Event is a single notification emitted by the manager and fanned out
// to subscribers. Events are immutable once emitted. Progress events
// carry ratio and rate, state changes carry the new state, error events
// carry the message; queue_changed has no payload beyond the type.
type Event struct {
	Type     EventType `json:"type"`
	TaskID   uuid.UUID `json:"task_id,omitempty"`
	State    State     `json:"state,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	Rate     int64     `json:"rate,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// ProgressEvent builds a progress notification for a task.
func ProgressEvent(id uuid.UUID, ratio float64, rate int64) Event {
	return Event{Type: EventProgress, TaskID: id, Progress: ratio, Rate: rate}
}

// StateChangeEvent builds a state transition notification.
func StateChangeEvent(id uuid.UUID, state State) Event {
	return Event{Type: EventStateChange, TaskID: id, State: state}
}

// ErrorEvent builds a failure notification.
func ErrorEvent(id uuid.UUID, message string) Event {
	return Event{Type: EventError, TaskID: id, Message: message}
}

// QueueChangedEvent signals that the pending queue membership changed.
func QueueChangedEvent() Event {
	return Event{Type: EventQueueChanged}
}
