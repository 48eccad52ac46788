package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ternarybob/investiq/internal/models"
)

// StepInput carries everything a step function may need: the run's ticker and
// the outputs of the step's declared dependencies, keyed by step name.
type StepInput struct {
	RunID   string
	Ticker  string
	Outputs map[string]json.RawMessage

	// SoftDeadline is earlier than the context's hard deadline; steps that
	// support partial results should wrap up when it passes.
	SoftDeadline time.Time
}

// Dependency decodes a named upstream output into v. Returns ErrMissingInput
// wrapped with the step name when the output is absent.
func (in *StepInput) Dependency(step models.StepName, v interface{}) error {
	raw, ok := in.Outputs[step.String()]
	if !ok || len(raw) == 0 {
		return &MissingInputError{Step: step}
	}
	return json.Unmarshal(raw, v)
}

// HasDependency reports whether a named upstream output is present
func (in *StepInput) HasDependency(step models.StepName) bool {
	raw, ok := in.Outputs[step.String()]
	return ok && len(raw) > 0
}

// MissingInputError signals a contract violation: a required upstream output
// was absent. Never retried - there is no transient cause.
type MissingInputError struct {
	Step models.StepName
}

func (e *MissingInputError) Error() string {
	return "missing required input from step " + e.Step.String()
}

// StepFunc is the unit-of-work contract: pure-ish, idempotent with respect to
// its inputs, returning a JSON-serializable output or an error.
type StepFunc func(ctx context.Context, input StepInput) (interface{}, error)

// StepDefinition registers a step with its queue affinity, timeout and
// criticality. Criticality is fixed per step, not per call.
type StepDefinition struct {
	Name     models.StepName
	Class    models.QueueClass
	Timeout  time.Duration
	Critical bool
	Func     StepFunc
}

// StepRegistry resolves step names to their definitions
type StepRegistry interface {
	Register(def StepDefinition) error
	Get(name models.StepName) (StepDefinition, bool)
	Names() []models.StepName
}
