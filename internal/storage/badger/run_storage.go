package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements run and invocation persistence for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.RunStorage = (*RunStorage)(nil)
var _ interfaces.InvocationStorage = (*RunStorage)(nil)

func (s *RunStorage) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	var run models.Run
	if err := s.db.Store().Get(runID, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.Run, error) {
	query := badgerhold.Where("ID").Ne("")
	if ticker != "" {
		query = badgerhold.Where("Ticker").Eq(ticker).Index("Ticker")
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.Run
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.Run, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) SaveInvocation(ctx context.Context, inv *models.StageInvocation) error {
	if inv.ID == "" {
		return fmt.Errorf("invocation ID is required")
	}
	if err := s.db.Store().Upsert(inv.ID, inv); err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}
	return nil
}

func (s *RunStorage) GetInvocation(ctx context.Context, invocationID string) (*models.StageInvocation, error) {
	var inv models.StageInvocation
	if err := s.db.Store().Get(invocationID, &inv); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("invocation not found: %s", invocationID)
		}
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return &inv, nil
}

func (s *RunStorage) GetInvocationByStep(ctx context.Context, runID string, step models.StepName) (*models.StageInvocation, error) {
	var invs []models.StageInvocation
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").And("Step").Eq(step)
	if err := s.db.Store().Find(&invs, query); err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	if len(invs) == 0 {
		return nil, badgerhold.ErrNotFound
	}
	// The invocation record is reused across attempts, so there is at most one
	return &invs[0], nil
}

func (s *RunStorage) ListInvocations(ctx context.Context, runID string) ([]*models.StageInvocation, error) {
	var invs []models.StageInvocation
	query := badgerhold.Where("RunID").Eq(runID).Index("RunID").SortBy("CreatedAt")
	if err := s.db.Store().Find(&invs, query); err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}

	result := make([]*models.StageInvocation, len(invs))
	for i := range invs {
		result[i] = &invs[i]
	}
	return result, nil
}

func (s *RunStorage) DeleteInvocations(ctx context.Context, runID string) error {
	if err := s.db.Store().DeleteMatching(&models.StageInvocation{}, badgerhold.Where("RunID").Eq(runID).Index("RunID")); err != nil {
		return fmt.Errorf("failed to delete invocations for run %s: %w", runID, err)
	}
	return nil
}
