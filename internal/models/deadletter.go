package models

import "time"

// DeadLetterEntry preserves a permanently failed stage invocation for
// operator inspection. Entries are never mutated; retention is an operator
// concern.
type DeadLetterEntry struct {
	ID           string         `badgerhold:"key" json:"id"`
	InvocationID string         `json:"invocation_id"`
	RunID        string         `badgerhold:"index" json:"run_id"`
	Step         StepName       `json:"step"`
	Class        QueueClass     `json:"queue_class"`
	AttemptErrors []AttemptError `json:"attempt_errors"` // every attempt, in order
	FinalError   string         `json:"final_error"`
	EnqueuedAt   time.Time      `badgerhold:"index" json:"enqueued_at"`
}
