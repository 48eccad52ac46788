package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle state of a run.
// Transitions are pending -> running -> {completed, failed}; nothing else.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunError is the structured error recorded when a critical step fails terminally
type RunError struct {
	Step     string `json:"step"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Run represents one end-to-end workflow execution for one ticker.
// The run coordinator owns it for the duration of the run; progress consumers
// only ever read it.
type Run struct {
	ID           string    `badgerhold:"key" json:"id"`
	Ticker       string    `badgerhold:"index" json:"ticker"`
	Status       RunStatus `badgerhold:"index" json:"status"`
	Progress     int       `json:"progress"` // 0..100, monotonically non-decreasing
	CurrentStage string    `json:"current_stage"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *RunError  `json:"error,omitempty"`

	// DegradedSteps lists non-critical steps whose terminal failure was
	// tolerated. The final report marks these facets as unavailable.
	DegradedSteps []string `json:"degraded_steps,omitempty"`

	// StageOutputs maps step name to that step's output payload. A tolerated
	// non-critical failure leaves its key absent.
	StageOutputs map[string]json.RawMessage `json:"stage_outputs,omitempty"`
}

// Output returns the recorded output for a step, or nil if absent
func (r *Run) Output(step StepName) json.RawMessage {
	if r.StageOutputs == nil {
		return nil
	}
	return r.StageOutputs[step.String()]
}

// IsDegraded reports whether the given step's failure was tolerated
func (r *Run) IsDegraded(step StepName) bool {
	for _, s := range r.DegradedSteps {
		if s == step.String() {
			return true
		}
	}
	return false
}
