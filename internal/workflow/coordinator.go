package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// Coordinator drives runs through the workflow graph. It reacts to terminal
// invocation transitions: record the outcome, advance progress, dispatch
// whatever became runnable. All mutation of one run happens under that run's
// lock; runs for different tickers proceed fully in parallel.
type Coordinator struct {
	runs        interfaces.RunStorage
	invocations interfaces.InvocationStorage
	dispatcher  interfaces.Dispatcher
	registry    interfaces.StepRegistry
	events      interfaces.EventService
	maxAttempts int
	logger      arbor.ILogger

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

var _ interfaces.RunCoordinator = (*Coordinator)(nil)

// NewCoordinator creates a run coordinator
func NewCoordinator(
	runs interfaces.RunStorage,
	invocations interfaces.InvocationStorage,
	dispatcher interfaces.Dispatcher,
	registry interfaces.StepRegistry,
	events interfaces.EventService,
	maxAttempts int,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		runs:        runs,
		invocations: invocations,
		dispatcher:  dispatcher,
		registry:    registry,
		events:      events,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// StartRun creates a run for the ticker and dispatches the fetch stage. It
// returns as soon as the stage-1 invocations are queued; all downstream work
// happens on the worker pools.
func (c *Coordinator) StartRun(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("invalid ticker %q", ticker)
	}

	run := &models.Run{
		ID:           common.NewRunID(),
		Ticker:       ticker,
		Status:       models.RunStatusPending,
		Progress:     0,
		CurrentStage: StageLabel(nil),
		CreatedAt:    time.Now(),
		StageOutputs: make(map[string]json.RawMessage),
	}
	if err := c.runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	run.Status = models.RunStatusRunning
	if err := c.runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	for _, step := range Runnable(nil) {
		if err := c.dispatchStep(ctx, run, step); err != nil {
			return "", fmt.Errorf("failed to dispatch %s: %w", step, err)
		}
	}

	c.logger.Info().
		Str("run_id", run.ID).
		Str("ticker", ticker).
		Msg("Run started")

	c.publish(ctx, interfaces.EventRunCreated, map[string]interface{}{
		"run_id": run.ID,
		"ticker": ticker,
		"status": string(run.Status),
	})

	return run.ID, nil
}

// GetRunStatus returns the latest recorded state of the run. Pure read, never
// blocks on the run lock.
func (c *Coordinator) GetRunStatus(ctx context.Context, runID string) (*interfaces.RunStatusView, error) {
	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &interfaces.RunStatusView{
		RunID:        run.ID,
		Ticker:       run.Ticker,
		Status:       run.Status,
		Progress:     run.Progress,
		CurrentStage: run.CurrentStage,
		Error:        run.Error,
	}, nil
}

// OnInvocationComplete handles a terminal invocation transition: records the
// output (or tolerated absence), advances progress and dispatches newly
// runnable steps.
func (c *Coordinator) OnInvocationComplete(ctx context.Context, inv *models.StageInvocation) {
	lock := c.runLock(inv.RunID)
	lock.Lock()
	defer lock.Unlock()

	run, err := c.runs.GetRun(ctx, inv.RunID)
	if err != nil {
		c.logger.Error().Err(err).Str("run_id", inv.RunID).Msg("Completion for unknown run")
		return
	}
	if run.Status.IsTerminal() {
		// Late completion after the run already failed; nothing to advance
		return
	}

	def, ok := c.registry.Get(inv.Step)
	if !ok {
		c.logger.Error().Str("step", inv.Step.String()).Msg("Completion for unregistered step")
		return
	}

	switch inv.Status {
	case models.InvocationSucceeded:
		if run.StageOutputs == nil {
			run.StageOutputs = make(map[string]json.RawMessage)
		}
		run.StageOutputs[inv.Step.String()] = inv.Output

	case models.InvocationFailedTerminal:
		if def.Critical {
			c.failRun(ctx, run, inv)
			return
		}
		// Non-critical: mark degraded, leave the output absent, keep going
		if !run.IsDegraded(inv.Step) {
			run.DegradedSteps = append(run.DegradedSteps, inv.Step.String())
		}
		c.logger.Warn().
			Str("run_id", run.ID).
			Str("step", inv.Step.String()).
			Msg("Non-critical step failed terminally, continuing degraded")

	default:
		c.logger.Warn().
			Str("invocation_id", inv.ID).
			Str("status", string(inv.Status)).
			Msg("Completion callback with non-terminal status, ignoring")
		return
	}

	settled := c.settledSteps(run)
	c.advance(run, settled)

	if inv.Step == models.StepAssembleReport && inv.Status == models.InvocationSucceeded {
		now := time.Now()
		run.Status = models.RunStatusCompleted
		run.CompletedAt = &now
	}

	if err := c.runs.SaveRun(ctx, run); err != nil {
		c.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save run progress")
		return
	}

	c.publish(ctx, interfaces.EventStepCompleted, map[string]interface{}{
		"run_id":    run.ID,
		"ticker":    run.Ticker,
		"step_name": inv.Step.String(),
		"status":    string(inv.Status),
		"progress":  run.Progress,
	})
	c.publish(ctx, interfaces.EventRunProgress, map[string]interface{}{
		"run_id":        run.ID,
		"ticker":        run.Ticker,
		"progress":      run.Progress,
		"current_stage": run.CurrentStage,
	})
	if run.Status.IsTerminal() {
		c.publish(ctx, interfaces.EventRunStatusChange, map[string]interface{}{
			"run_id": run.ID,
			"ticker": run.Ticker,
			"status": string(run.Status),
		})
		c.cleanupInvocations(ctx, run.ID)
		c.releaseRunLock(run.ID)
		c.logger.Info().
			Str("run_id", run.ID).
			Str("ticker", run.Ticker).
			Int("degraded_steps", len(run.DegradedSteps)).
			Msg("Run completed")
		return
	}

	// Dispatch whatever just became runnable
	for _, step := range Runnable(settled) {
		existing, err := c.invocations.GetInvocationByStep(ctx, run.ID, step)
		if err == nil && existing != nil {
			continue // already dispatched
		}
		if err := c.dispatchStep(ctx, run, step); err != nil {
			c.logger.Error().
				Err(err).
				Str("run_id", run.ID).
				Str("step", step.String()).
				Msg("Failed to dispatch step")
		}
	}
}

// dispatchStep builds the step's input from its dependencies' outputs and
// submits the invocation. Workers stay step-agnostic: everything a step needs
// travels in the invocation record.
func (c *Coordinator) dispatchStep(ctx context.Context, run *models.Run, step models.StepName) error {
	def, ok := c.registry.Get(step)
	if !ok {
		return fmt.Errorf("step %s not registered", step)
	}

	outputs := make(map[string]json.RawMessage)
	for _, dep := range Dependencies(step) {
		if out := run.Output(dep); out != nil {
			outputs[dep.String()] = out
		}
	}

	input, err := json.Marshal(interfaces.StepInput{
		RunID:   run.ID,
		Ticker:  run.Ticker,
		Outputs: outputs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	inv := &models.StageInvocation{
		ID:          common.NewInvocationID(),
		RunID:       run.ID,
		Step:        step,
		Class:       def.Class,
		Attempt:     0,
		MaxAttempts: c.maxAttempts,
		Status:      models.InvocationQueued,
		Input:       input,
		CreatedAt:   time.Now(),
	}
	return c.dispatcher.Submit(ctx, inv)
}

// failRun transitions the run to failed after a critical terminal failure.
// No further steps are dispatched; in-flight siblings finish but their late
// completions are ignored.
func (c *Coordinator) failRun(ctx context.Context, run *models.Run, inv *models.StageInvocation) {
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.Error = &models.RunError{
		Step:     inv.Step.String(),
		Message:  inv.Error,
		Attempts: inv.Attempt,
	}

	if err := c.runs.SaveRun(ctx, run); err != nil {
		c.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist failed run")
	}

	c.logger.Error().
		Str("run_id", run.ID).
		Str("ticker", run.Ticker).
		Str("step", inv.Step.String()).
		Int("attempts", inv.Attempt).
		Msg("Run failed on critical step")

	c.publish(ctx, interfaces.EventRunStatusChange, map[string]interface{}{
		"run_id":    run.ID,
		"ticker":    run.Ticker,
		"status":    string(run.Status),
		"step_name": inv.Step.String(),
		"error":     inv.Error,
	})
	c.cleanupInvocations(ctx, run.ID)
	c.releaseRunLock(run.ID)
}

// cleanupInvocations destroys the run's invocation records once the run is
// terminal. Failure history survives in the dead-letter store; in-flight
// sibling messages that still reference a deleted record are dropped by the
// workers.
func (c *Coordinator) cleanupInvocations(ctx context.Context, runID string) {
	if err := c.invocations.DeleteInvocations(ctx, runID); err != nil {
		c.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to clean up invocations")
	}
}

// settledSteps builds the set of steps that no longer block the graph:
// succeeded steps plus tolerated non-critical failures.
func (c *Coordinator) settledSteps(run *models.Run) map[models.StepName]bool {
	settled := make(map[models.StepName]bool, TotalSteps)
	for name := range run.StageOutputs {
		settled[models.StepName(name)] = true
	}
	for _, name := range run.DegradedSteps {
		settled[models.StepName(name)] = true
	}
	return settled
}

// advance recomputes progress and the stage label. Progress never decreases.
func (c *Coordinator) advance(run *models.Run, settled map[models.StepName]bool) {
	if p := Progress(len(settled)); p > run.Progress {
		run.Progress = p
	}
	run.CurrentStage = StageLabel(settled)
}

func (c *Coordinator) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		c.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}

// runLock returns the mutex serializing completions for one run
func (c *Coordinator) runLock(runID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runLocks == nil {
		c.runLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := c.runLocks[runID]
	if !ok {
		lock = &sync.Mutex{}
		c.runLocks[runID] = lock
	}
	return lock
}

func (c *Coordinator) releaseRunLock(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runLocks, runID)
}
