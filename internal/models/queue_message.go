package models

import "errors"

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the queue.
// Keep it simple - just enough to route the invocation to its worker.
type QueueMessage struct {
	InvocationID string     `json:"invocation_id"` // References stage invocation
	RunID        string     `json:"run_id"`
	Step         StepName   `json:"step"`
	Class        QueueClass `json:"queue_class"`
}
