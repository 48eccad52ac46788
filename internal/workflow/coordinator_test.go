package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

// In-memory run storage
type memRunStorage struct {
	mu   sync.Mutex
	runs map[string]*models.Run
}

func newMemRunStorage() *memRunStorage {
	return &memRunStorage{runs: make(map[string]*models.Run)}
}

func (s *memRunStorage) SaveRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memRunStorage) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	copied := *run
	return &copied, nil
}

func (s *memRunStorage) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.Run, error) {
	return nil, nil
}

// In-memory invocation storage
type memInvStorage struct {
	mu          sync.Mutex
	byID        map[string]*models.StageInvocation
	deletedRuns []string
}

func newMemInvStorage() *memInvStorage {
	return &memInvStorage{byID: make(map[string]*models.StageInvocation)}
}

func (s *memInvStorage) SaveInvocation(ctx context.Context, inv *models.StageInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *inv
	s.byID[inv.ID] = &copied
	return nil
}

func (s *memInvStorage) GetInvocation(ctx context.Context, invocationID string) (*models.StageInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[invocationID]
	if !ok {
		return nil, errors.New("invocation not found")
	}
	copied := *inv
	return &copied, nil
}

func (s *memInvStorage) GetInvocationByStep(ctx context.Context, runID string, step models.StepName) (*models.StageInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.byID {
		if inv.RunID == runID && inv.Step == step {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, errors.New("invocation not found")
}

func (s *memInvStorage) ListInvocations(ctx context.Context, runID string) ([]*models.StageInvocation, error) {
	return nil, nil
}

func (s *memInvStorage) DeleteInvocations(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.byID {
		if inv.RunID == runID {
			delete(s.byID, id)
		}
	}
	s.deletedRuns = append(s.deletedRuns, runID)
	return nil
}

func (s *memInvStorage) deletedFor(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.deletedRuns {
		if id == runID {
			return true
		}
	}
	return false
}

// mockDispatcher records submissions and persists them like the real one
type mockDispatcher struct {
	mu          sync.Mutex
	invocations *memInvStorage
	submitted   []*models.StageInvocation
}

func (d *mockDispatcher) Submit(ctx context.Context, inv *models.StageInvocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.invocations.SaveInvocation(ctx, inv); err != nil {
		return err
	}
	copied := *inv
	d.submitted = append(d.submitted, &copied)
	return nil
}

func (d *mockDispatcher) submittedSteps() []models.StepName {
	d.mu.Lock()
	defer d.mu.Unlock()
	steps := make([]models.StepName, len(d.submitted))
	for i, inv := range d.submitted {
		steps[i] = inv.Step
	}
	return steps
}

func (d *mockDispatcher) find(step models.StepName) *models.StageInvocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, inv := range d.submitted {
		if inv.Step == step {
			return inv
		}
	}
	return nil
}

// mockRegistry registers the full workflow with its real criticality
type mockRegistry struct {
	defs map[models.StepName]interfaces.StepDefinition
}

func newMockRegistry() *mockRegistry {
	r := &mockRegistry{defs: make(map[models.StepName]interfaces.StepDefinition)}
	critical := map[models.StepName]bool{
		models.StepFetchPriceData:   true,
		models.StepFetchNews:        true,
		models.StepEmbedDocuments:   false,
		models.StepAnalyzeSentiment: true,
		models.StepSummarizeNews:    true,
		models.StepGenerateInsights: true,
		models.StepAssembleReport:   true,
	}
	classes := map[models.StepName]models.QueueClass{
		models.StepFetchPriceData:   models.QueueClassFetch,
		models.StepFetchNews:        models.QueueClassFetch,
		models.StepEmbedDocuments:   models.QueueClassEmbed,
		models.StepAnalyzeSentiment: models.QueueClassLLM,
		models.StepSummarizeNews:    models.QueueClassLLM,
		models.StepGenerateInsights: models.QueueClassLLM,
		models.StepAssembleReport:   models.QueueClassAggregate,
	}
	for _, step := range Steps() {
		r.defs[step] = interfaces.StepDefinition{
			Name:     step,
			Class:    classes[step],
			Critical: critical[step],
		}
	}
	return r
}

func (r *mockRegistry) Register(def interfaces.StepDefinition) error {
	r.defs[def.Name] = def
	return nil
}

func (r *mockRegistry) Get(name models.StepName) (interfaces.StepDefinition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

func (r *mockRegistry) Names() []models.StepName {
	return Steps()
}

type testHarness struct {
	coordinator *Coordinator
	runs        *memRunStorage
	invs        *memInvStorage
	dispatcher  *mockDispatcher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	runs := newMemRunStorage()
	invs := newMemInvStorage()
	dispatcher := &mockDispatcher{invocations: invs}
	coordinator := NewCoordinator(runs, invs, dispatcher, newMockRegistry(), nil, 3, arbor.NewLogger())
	return &testHarness{coordinator: coordinator, runs: runs, invs: invs, dispatcher: dispatcher}
}

// succeed marks a previously submitted step succeeded and fires the callback
func (h *testHarness) succeed(t *testing.T, step models.StepName, output interface{}) {
	t.Helper()
	inv := h.dispatcher.find(step)
	if inv == nil {
		t.Fatalf("step %s was never submitted", step)
	}
	data, err := json.Marshal(output)
	if err != nil {
		t.Fatalf("marshal output for %s: %v", step, err)
	}
	inv.Attempt++
	inv.Status = models.InvocationSucceeded
	inv.Output = data
	h.coordinator.OnInvocationComplete(context.Background(), inv)
}

// failTerminal marks a submitted step terminally failed and fires the callback
func (h *testHarness) failTerminal(t *testing.T, step models.StepName, attempts int, msg string) {
	t.Helper()
	inv := h.dispatcher.find(step)
	if inv == nil {
		t.Fatalf("step %s was never submitted", step)
	}
	inv.Attempt = attempts
	inv.Status = models.InvocationFailedTerminal
	inv.Error = msg
	h.coordinator.OnInvocationComplete(context.Background(), inv)
}

func (h *testHarness) status(t *testing.T, runID string) *interfaces.RunStatusView {
	t.Helper()
	view, err := h.coordinator.GetRunStatus(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRunStatus failed: %v", err)
	}
	return view
}

func TestStartRun_DispatchesFetchStageAndReturnsFast(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	runID, err := h.coordinator.StartRun(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("StartRun took %v, want <500ms", elapsed)
	}

	steps := h.dispatcher.submittedSteps()
	if len(steps) != 2 {
		t.Fatalf("expected 2 submissions after start, got %v", steps)
	}

	view := h.status(t, runID)
	if view.Status != models.RunStatusRunning {
		t.Errorf("run status = %s, want running", view.Status)
	}
	if view.Progress != 0 {
		t.Errorf("initial progress = %d, want 0", view.Progress)
	}
	if view.CurrentStage != "fetching" {
		t.Errorf("initial stage = %s, want fetching", view.CurrentStage)
	}
	if view.Ticker != "AAPL" {
		t.Errorf("ticker not normalized: %s", view.Ticker)
	}
}

func TestStartRun_RejectsInvalidTicker(t *testing.T) {
	h := newHarness(t)

	for _, ticker := range []string{"", "   ", "not a ticker", "1234$", "WAYTOOLONGTICKER"} {
		if _, err := h.coordinator.StartRun(context.Background(), ticker); err == nil {
			t.Errorf("StartRun accepted invalid ticker %q", ticker)
		}
	}
}

func TestCoordinator_FanOutFanInOrdering(t *testing.T) {
	h := newHarness(t)
	runID, err := h.coordinator.StartRun(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	// One fetch done: enrichment must stay blocked
	h.succeed(t, models.StepFetchPriceData, map[string]string{"ticker": "AAPL"})
	if len(h.dispatcher.submittedSteps()) != 2 {
		t.Fatalf("enrichment dispatched before both fetches: %v", h.dispatcher.submittedSteps())
	}

	// Second fetch done: all three enrichment steps dispatch together
	h.succeed(t, models.StepFetchNews, map[string]int{"article_count": 5})
	steps := h.dispatcher.submittedSteps()
	if len(steps) != 5 {
		t.Fatalf("expected 5 submissions after both fetches, got %v", steps)
	}
	for _, step := range []models.StepName{models.StepEmbedDocuments, models.StepAnalyzeSentiment, models.StepSummarizeNews} {
		if h.dispatcher.find(step) == nil {
			t.Errorf("%s not dispatched after fetch stage", step)
		}
	}

	// Sentiment + summary done, embed pending: insights dispatches anyway
	h.succeed(t, models.StepAnalyzeSentiment, map[string]float64{"sentiment_score": 0.4})
	h.succeed(t, models.StepSummarizeNews, map[string]string{"summary": "steady quarter"})
	if h.dispatcher.find(models.StepGenerateInsights) == nil {
		t.Fatal("generate_insights not dispatched after sentiment and summary")
	}
	if h.dispatcher.find(models.StepAssembleReport) != nil {
		t.Fatal("assemble_report dispatched before embed and insights settled")
	}

	// Remaining steps finish: aggregate dispatches, then the run completes
	h.succeed(t, models.StepEmbedDocuments, map[string]int{"document_count": 5})
	h.succeed(t, models.StepGenerateInsights, map[string]string{"insights": "hold"})
	if h.dispatcher.find(models.StepAssembleReport) == nil {
		t.Fatal("assemble_report not dispatched after all six steps settled")
	}

	h.succeed(t, models.StepAssembleReport, map[string]string{"report_id": "rpt_x"})
	view := h.status(t, runID)
	if view.Status != models.RunStatusCompleted {
		t.Errorf("run status = %s, want completed", view.Status)
	}
	if view.Progress != 100 {
		t.Errorf("final progress = %d, want 100", view.Progress)
	}
}

func TestCoordinator_ProgressMonotonicAndReaches100(t *testing.T) {
	h := newHarness(t)
	runID, _ := h.coordinator.StartRun(context.Background(), "MSFT")

	order := []models.StepName{
		models.StepFetchPriceData,
		models.StepFetchNews,
		models.StepEmbedDocuments,
		models.StepAnalyzeSentiment,
		models.StepSummarizeNews,
		models.StepGenerateInsights,
		models.StepAssembleReport,
	}

	last := 0
	for _, step := range order {
		h.succeed(t, step, map[string]string{"step": step.String()})
		view := h.status(t, runID)
		if view.Progress < last {
			t.Errorf("progress decreased after %s: %d -> %d", step, last, view.Progress)
		}
		if view.Progress == 100 && view.Status != models.RunStatusCompleted {
			t.Errorf("progress hit 100 while status is %s", view.Status)
		}
		last = view.Progress
	}

	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestCoordinator_NonCriticalFailureTolerated(t *testing.T) {
	h := newHarness(t)
	runID, _ := h.coordinator.StartRun(context.Background(), "NVDA")

	h.succeed(t, models.StepFetchPriceData, map[string]string{"ticker": "NVDA"})
	h.succeed(t, models.StepFetchNews, map[string]int{"article_count": 3})

	// Embedding dies for good: the run keeps going
	h.failTerminal(t, models.StepEmbedDocuments, 3, "embedding service unreachable")

	view := h.status(t, runID)
	if view.Status != models.RunStatusRunning {
		t.Fatalf("run status after non-critical failure = %s, want running", view.Status)
	}
	if view.Error != nil {
		t.Errorf("non-critical failure recorded as run error: %+v", view.Error)
	}

	h.succeed(t, models.StepAnalyzeSentiment, map[string]float64{"sentiment_score": 0.1})
	h.succeed(t, models.StepSummarizeNews, map[string]string{"summary": "mixed"})
	h.succeed(t, models.StepGenerateInsights, map[string]string{"insights": "watch"})

	// Aggregate dispatches even though embed produced nothing
	aggInv := h.dispatcher.find(models.StepAssembleReport)
	if aggInv == nil {
		t.Fatal("assemble_report not dispatched on degraded run")
	}
	var input interfaces.StepInput
	if err := json.Unmarshal(aggInv.Input, &input); err != nil {
		t.Fatalf("failed to decode aggregate input: %v", err)
	}
	if input.HasDependency(models.StepEmbedDocuments) {
		t.Error("degraded step's output present in aggregate input")
	}
	if !input.HasDependency(models.StepAnalyzeSentiment) {
		t.Error("sentiment output missing from aggregate input")
	}

	h.succeed(t, models.StepAssembleReport, map[string]string{"report_id": "rpt_y"})
	view = h.status(t, runID)
	if view.Status != models.RunStatusCompleted {
		t.Errorf("degraded run status = %s, want completed", view.Status)
	}
	if view.Progress != 100 {
		t.Errorf("degraded run progress = %d, want 100", view.Progress)
	}

	run, err := h.runs.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !run.IsDegraded(models.StepEmbedDocuments) {
		t.Error("embed_documents not recorded as degraded")
	}
}

func TestCoordinator_CriticalFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	runID, _ := h.coordinator.StartRun(context.Background(), "TSLA")

	h.succeed(t, models.StepFetchPriceData, map[string]string{"ticker": "TSLA"})
	h.failTerminal(t, models.StepFetchNews, 3, "news provider returned 500 on every attempt")

	view := h.status(t, runID)
	if view.Status != models.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", view.Status)
	}
	if view.Error == nil {
		t.Fatal("failed run has no error recorded")
	}
	if view.Error.Step != models.StepFetchNews.String() {
		t.Errorf("run error step = %s, want fetch_news", view.Error.Step)
	}
	if view.Error.Attempts != 3 {
		t.Errorf("run error attempts = %d, want 3", view.Error.Attempts)
	}
	if view.Progress == 100 {
		t.Error("failed run reports 100 progress")
	}

	// No enrichment may have been dispatched
	steps := h.dispatcher.submittedSteps()
	if len(steps) != 2 {
		t.Errorf("steps dispatched after critical failure: %v", steps)
	}
}

func TestCoordinator_InvocationsCleanedUpOnTerminalRun(t *testing.T) {
	h := newHarness(t)
	runID, _ := h.coordinator.StartRun(context.Background(), "AAPL")

	order := []models.StepName{
		models.StepFetchPriceData,
		models.StepFetchNews,
		models.StepEmbedDocuments,
		models.StepAnalyzeSentiment,
		models.StepSummarizeNews,
		models.StepGenerateInsights,
	}
	for _, step := range order {
		h.succeed(t, step, map[string]string{"step": step.String()})
		if h.invs.deletedFor(runID) {
			t.Fatalf("invocations deleted while run still in flight, after %s", step)
		}
	}

	h.succeed(t, models.StepAssembleReport, map[string]string{"report_id": "rpt_z"})
	if !h.invs.deletedFor(runID) {
		t.Error("invocations not cleaned up after run completed")
	}

	// Failed runs clean up the same way
	failedID, _ := h.coordinator.StartRun(context.Background(), "TSLA")
	var fetchInv *models.StageInvocation
	for _, inv := range h.dispatcher.submitted {
		if inv.RunID == failedID && inv.Step == models.StepFetchNews {
			fetchInv = inv
			break
		}
	}
	if fetchInv == nil {
		t.Fatal("fetch_news never submitted for second run")
	}
	fetchInv.Attempt = 3
	fetchInv.Status = models.InvocationFailedTerminal
	fetchInv.Error = "provider down"
	h.coordinator.OnInvocationComplete(context.Background(), fetchInv)

	if !h.invs.deletedFor(failedID) {
		t.Error("invocations not cleaned up after run failed")
	}
}

func TestCoordinator_LateCompletionAfterFailureIgnored(t *testing.T) {
	h := newHarness(t)
	runID, _ := h.coordinator.StartRun(context.Background(), "AMZN")

	h.failTerminal(t, models.StepFetchNews, 3, "terminal")

	// The sibling fetch finishes afterwards; the run must stay failed and
	// nothing new may dispatch
	h.succeed(t, models.StepFetchPriceData, map[string]string{"ticker": "AMZN"})

	view := h.status(t, runID)
	if view.Status != models.RunStatusFailed {
		t.Errorf("late completion changed run status to %s", view.Status)
	}
	if len(h.dispatcher.submittedSteps()) != 2 {
		t.Errorf("late completion triggered dispatch: %v", h.dispatcher.submittedSteps())
	}
}

func TestCoordinator_ParallelRunsIsolated(t *testing.T) {
	h := newHarness(t)

	run1, _ := h.coordinator.StartRun(context.Background(), "AAPL")
	run2, _ := h.coordinator.StartRun(context.Background(), "MSFT")

	if run1 == run2 {
		t.Fatal("two runs share an id")
	}

	// Fail run1 critically; run2 must be untouched
	var run1Fetch *models.StageInvocation
	for _, inv := range h.dispatcher.submitted {
		if inv.RunID == run1 && inv.Step == models.StepFetchNews {
			run1Fetch = inv
			break
		}
	}
	if run1Fetch == nil {
		t.Fatal("run1 fetch_news never submitted")
	}
	run1Fetch.Attempt = 3
	run1Fetch.Status = models.InvocationFailedTerminal
	run1Fetch.Error = "boom"
	h.coordinator.OnInvocationComplete(context.Background(), run1Fetch)

	if view := h.status(t, run1); view.Status != models.RunStatusFailed {
		t.Errorf("run1 status = %s, want failed", view.Status)
	}
	if view := h.status(t, run2); view.Status != models.RunStatusRunning {
		t.Errorf("run2 status = %s, want running", view.Status)
	}
}

func TestGetRunStatus_UnknownRun(t *testing.T) {
	h := newHarness(t)
	if _, err := h.coordinator.GetRunStatus(context.Background(), fmt.Sprintf("run_%d", time.Now().UnixNano())); err == nil {
		t.Error("expected error for unknown run")
	}
}
