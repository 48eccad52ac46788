package interfaces

import (
	"context"

	"github.com/ternarybob/investiq/internal/models"
)

// RunStatusView is the read model handed to progress consumers
type RunStatusView struct {
	RunID        string           `json:"run_id"`
	Ticker       string           `json:"ticker"`
	Status       models.RunStatus `json:"status"`
	Progress     int              `json:"progress"`
	CurrentStage string           `json:"current_stage"`
	Error        *models.RunError `json:"error,omitempty"`
}

// RunCoordinator drives workflow runs from submission to terminal state
type RunCoordinator interface {
	CompletionHandler

	// StartRun creates a run, dispatches the fetch stage and returns without
	// waiting on downstream work.
	StartRun(ctx context.Context, ticker string) (string, error)

	// GetRunStatus is a pure read of the latest recorded state
	GetRunStatus(ctx context.Context, runID string) (*RunStatusView, error)
}
