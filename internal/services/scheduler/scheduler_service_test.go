package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

type mockCoordinator struct {
	mu      sync.Mutex
	started []string
}

func (m *mockCoordinator) StartRun(ctx context.Context, ticker string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, ticker)
	return "run_" + ticker, nil
}

func (m *mockCoordinator) GetRunStatus(ctx context.Context, runID string) (*interfaces.RunStatusView, error) {
	return nil, nil
}

func (m *mockCoordinator) OnInvocationComplete(ctx context.Context, inv *models.StageInvocation) {}

func (m *mockCoordinator) startedTickers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

type mockRunStorage struct {
	latest map[string]*models.Run
}

func (m *mockRunStorage) SaveRun(ctx context.Context, run *models.Run) error { return nil }

func (m *mockRunStorage) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	return nil, fmt.Errorf("run not found: %s", runID)
}

func (m *mockRunStorage) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.Run, error) {
	if run, ok := m.latest[ticker]; ok {
		return []*models.Run{run}, nil
	}
	return nil, nil
}

func newTestService(cfg *common.SchedulerConfig, latest map[string]*models.Run) (*Service, *mockCoordinator) {
	coordinator := &mockCoordinator{}
	runs := &mockRunStorage{latest: latest}
	return NewService(cfg, coordinator, runs, arbor.NewLogger()), coordinator
}

func TestRunScheduledAnalysis_StartsAllTickers(t *testing.T) {
	svc, coordinator := newTestService(&common.SchedulerConfig{
		Tickers: []string{"AAPL", "MSFT"},
	}, nil)

	svc.runScheduledAnalysis()

	started := coordinator.startedTickers()
	if len(started) != 2 || started[0] != "AAPL" || started[1] != "MSFT" {
		t.Errorf("started = %v", started)
	}
}

func TestRunScheduledAnalysis_SkipsActiveRuns(t *testing.T) {
	svc, coordinator := newTestService(&common.SchedulerConfig{
		Tickers: []string{"AAPL", "MSFT"},
	}, map[string]*models.Run{
		"AAPL": {ID: "run_1", Ticker: "AAPL", Status: models.RunStatusRunning},
		"MSFT": {ID: "run_2", Ticker: "MSFT", Status: models.RunStatusCompleted},
	})

	svc.runScheduledAnalysis()

	started := coordinator.startedTickers()
	if len(started) != 1 || started[0] != "MSFT" {
		t.Errorf("started = %v, want only MSFT", started)
	}
}

func TestStart_RequiresTickers(t *testing.T) {
	svc, _ := newTestService(&common.SchedulerConfig{Enabled: true}, nil)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start with no tickers should be a no-op, got %v", err)
	}
	if svc.running {
		t.Error("scheduler should not be running without tickers")
	}
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	svc, _ := newTestService(&common.SchedulerConfig{
		Schedule: "0 6 * * *",
		Tickers:  []string{"AAPL"},
	}, nil)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if err := svc.Start(); err == nil {
		t.Fatal("expected error on second Start")
	}
}
