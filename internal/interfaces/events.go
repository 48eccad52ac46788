package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventRunCreated      EventType = "run_created"
	EventRunProgress     EventType = "run_progress"
	EventRunStatusChange EventType = "run_status_change"
	EventStepCompleted   EventType = "step_completed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload map[string]interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus. This is the sole feed an
// SSE/WebSocket layer needs to relay run progress to clients.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	Close() error
}
