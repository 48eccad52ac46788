package models

import (
	"encoding/json"
	"time"
)

// InvocationStatus represents the state of one stage invocation
type InvocationStatus string

const (
	InvocationQueued          InvocationStatus = "queued"
	InvocationRunning         InvocationStatus = "running"
	InvocationSucceeded       InvocationStatus = "succeeded"
	InvocationFailedRetryable InvocationStatus = "failed_retryable"
	InvocationFailedTerminal  InvocationStatus = "failed_terminal"
)

// IsTerminal reports whether the invocation has finished for good
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationSucceeded || s == InvocationFailedTerminal
}

// AttemptError records the outcome of one failed attempt
type AttemptError struct {
	Attempt    int       `json:"attempt"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StageInvocation is one execution of one step within a run. On retry the
// record is reused with an incremented attempt counter rather than duplicated,
// which is what keeps at most one invocation running per (run, step).
type StageInvocation struct {
	ID          string           `badgerhold:"key" json:"id"`
	RunID       string           `badgerhold:"index" json:"run_id"`
	Step        StepName         `json:"step"`
	Class       QueueClass       `json:"queue_class"`
	Attempt     int              `json:"attempt"`
	MaxAttempts int              `json:"max_attempts"`
	Status      InvocationStatus `badgerhold:"index" json:"status"`
	Input       json.RawMessage  `json:"input,omitempty"`
	Output      json.RawMessage  `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`

	// AttemptErrors preserves every failed attempt in order, so a dead-letter
	// entry can carry the full failure history.
	AttemptErrors []AttemptError `json:"attempt_errors,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
