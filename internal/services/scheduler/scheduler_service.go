package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
)

// Service re-analyzes tracked tickers on a cron schedule. Each tick submits
// one run per configured ticker, skipping tickers that still have a run in
// flight so a slow run never stacks up behind itself.
type Service struct {
	config      *common.SchedulerConfig
	coordinator interfaces.RunCoordinator
	runs        interfaces.RunStorage
	cron        *cron.Cron
	logger      arbor.ILogger
	mu          sync.Mutex
	running     bool
}

// NewService creates a new scheduler service
func NewService(cfg *common.SchedulerConfig, coordinator interfaces.RunCoordinator, runs interfaces.RunStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:      cfg,
		coordinator: coordinator,
		runs:        runs,
		cron:        cron.New(),
		logger:      logger,
	}
}

// Start registers the analysis job and begins the cron loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if len(s.config.Tickers) == 0 {
		s.logger.Warn().Msg("Scheduler enabled but no tickers configured, nothing to do")
		return nil
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "0 6 * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduledAnalysis); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Int("ticker_count", len(s.config.Tickers)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for any in-flight tick to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) runScheduledAnalysis() {
	ctx := context.Background()

	for _, ticker := range s.config.Tickers {
		if s.hasActiveRun(ctx, ticker) {
			s.logger.Info().
				Str("ticker", ticker).
				Msg("Skipping scheduled analysis, run already in flight")
			continue
		}

		runID, err := s.coordinator.StartRun(ctx, ticker)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("ticker", ticker).
				Msg("Failed to start scheduled analysis")
			continue
		}

		s.logger.Info().
			Str("ticker", ticker).
			Str("run_id", runID).
			Msg("Scheduled analysis started")
	}
}

// hasActiveRun checks the most recent run for the ticker. A storage error
// reads as no active run; the worst case is one redundant analysis.
func (s *Service) hasActiveRun(ctx context.Context, ticker string) bool {
	recent, err := s.runs.ListRuns(ctx, ticker, 1)
	if err != nil || len(recent) == 0 {
		return false
	}
	return !recent[0].Status.IsTerminal()
}
