package interfaces

import (
	"context"

	"github.com/ternarybob/investiq/internal/models"
)

// RunStorage persists workflow runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	ListRuns(ctx context.Context, ticker string, limit int) ([]*models.Run, error)
}

// InvocationStorage persists stage invocations
type InvocationStorage interface {
	SaveInvocation(ctx context.Context, inv *models.StageInvocation) error
	GetInvocation(ctx context.Context, invocationID string) (*models.StageInvocation, error)
	GetInvocationByStep(ctx context.Context, runID string, step models.StepName) (*models.StageInvocation, error)
	ListInvocations(ctx context.Context, runID string) ([]*models.StageInvocation, error)
	DeleteInvocations(ctx context.Context, runID string) error
}

// ReportStorage persists analysis reports
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.AnalysisReport) error
	GetLatestReport(ctx context.Context, ticker string) (*models.AnalysisReport, error)
	ListReports(ctx context.Context, ticker string, limit int) ([]*models.AnalysisReport, error)
}

// DeadLetterStorage persists permanently failed invocations
type DeadLetterStorage interface {
	SaveDeadLetter(ctx context.Context, entry *models.DeadLetterEntry) error
	ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterEntry, error)
}

// KeyValueStorage stores opaque values (embedding batches, API keys)
type KeyValueStorage interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// StorageManager aggregates the storage interfaces over one database
type StorageManager interface {
	RunStorage() RunStorage
	InvocationStorage() InvocationStorage
	ReportStorage() ReportStorage
	DeadLetterStorage() DeadLetterStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
