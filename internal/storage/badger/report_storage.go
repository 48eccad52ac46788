package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReportStorage implements analysis report persistence for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.AnalysisReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if report.Ticker == "" {
		return fmt.Errorf("report ticker is required")
	}

	// Reports are insert-only; a re-analysis writes a new row
	if err := s.db.Store().Insert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Debug().
		Str("report_id", report.ID).
		Str("ticker", report.Ticker).
		Msg("Analysis report saved")

	return nil
}

func (s *ReportStorage) GetLatestReport(ctx context.Context, ticker string) (*models.AnalysisReport, error) {
	var reports []models.AnalysisReport
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").SortBy("AnalyzedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, badgerhold.ErrNotFound
	}
	return &reports[0], nil
}

func (s *ReportStorage) ListReports(ctx context.Context, ticker string, limit int) ([]*models.AnalysisReport, error) {
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").SortBy("AnalyzedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reports []models.AnalysisReport
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	result := make([]*models.AnalysisReport, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}
