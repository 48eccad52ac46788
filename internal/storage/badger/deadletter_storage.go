package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DeadLetterStorage implements dead-letter persistence for Badger
type DeadLetterStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDeadLetterStorage creates a new DeadLetterStorage instance
func NewDeadLetterStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DeadLetterStorage {
	return &DeadLetterStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DeadLetterStorage) SaveDeadLetter(ctx context.Context, entry *models.DeadLetterEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("dead-letter ID is required")
	}

	// Entries are never mutated after creation
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save dead-letter entry: %w", err)
	}

	s.logger.Warn().
		Str("dead_letter_id", entry.ID).
		Str("run_id", entry.RunID).
		Str("step", entry.Step.String()).
		Int("attempts", len(entry.AttemptErrors)).
		Msg("Invocation dead-lettered")

	return nil
}

func (s *DeadLetterStorage) ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterEntry, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("EnqueuedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.DeadLetterEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	result := make([]*models.DeadLetterEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}
