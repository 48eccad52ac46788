package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
	"golang.org/x/time/rate"
)

// Dispatcher routes stage invocations onto their resource-class queues and
// owns the worker pools that drain them. Queue classes are isolated: a burst
// of cheap fetch work never sits behind slow LLM calls, and vice versa.
type Dispatcher struct {
	config      Config
	queues      map[models.QueueClass]interfaces.QueueManager
	pools       map[models.QueueClass]*WorkerPool
	invocations interfaces.InvocationStorage
	deadLetters interfaces.DeadLetterStorage
	registry    interfaces.StepRegistry
	handler     interfaces.CompletionHandler
	logger      arbor.ILogger
}

var _ interfaces.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with one queue and one worker pool per
// resource class, all sharing the given Badger database.
func NewDispatcher(
	db *badger.DB,
	config Config,
	invocations interfaces.InvocationStorage,
	deadLetters interfaces.DeadLetterStorage,
	registry interfaces.StepRegistry,
	logger arbor.ILogger,
) (*Dispatcher, error) {
	d := &Dispatcher{
		config:      config,
		queues:      make(map[models.QueueClass]interfaces.QueueManager),
		pools:       make(map[models.QueueClass]*WorkerPool),
		invocations: invocations,
		deadLetters: deadLetters,
		registry:    registry,
		logger:      logger,
	}

	for _, class := range models.AllQueueClasses() {
		cfg, ok := config.Classes[class]
		if !ok {
			return nil, fmt.Errorf("missing queue configuration for class %s", class)
		}

		mgr, err := NewBadgerManager(db, cfg.QueueName, cfg.VisibilityTimeout, cfg.MaxReceive, d.handlePoison)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue for class %s: %w", class, err)
		}
		d.queues[class] = mgr

		var limiter *rate.Limiter
		if cfg.RequestsPerMinute > 0 {
			limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
		}

		d.pools[class] = NewWorkerPool(class, cfg, mgr, d, limiter, logger)
	}

	return d, nil
}

// SetCompletionHandler wires the run coordinator in after construction.
// The coordinator needs the dispatcher to submit work and the dispatcher
// needs the coordinator for completions, so one side attaches late.
func (d *Dispatcher) SetCompletionHandler(handler interfaces.CompletionHandler) {
	d.handler = handler
}

// Start starts the worker pools for every class
func (d *Dispatcher) Start() error {
	if d.handler == nil {
		return fmt.Errorf("completion handler not set")
	}
	for class, pool := range d.pools {
		if err := pool.Start(); err != nil {
			return fmt.Errorf("failed to start %s worker pool: %w", class, err)
		}
	}
	return nil
}

// Stop stops the worker pools
func (d *Dispatcher) Stop() error {
	for _, pool := range d.pools {
		pool.Stop()
	}
	return nil
}

// Submit persists the invocation as queued and enqueues it on its class
// queue. Fire-and-forget: delivery is at-least-once from here on.
func (d *Dispatcher) Submit(ctx context.Context, inv *models.StageInvocation) error {
	if !inv.Step.IsValid() {
		return fmt.Errorf("unknown step: %s", inv.Step)
	}
	queue, ok := d.queues[inv.Class]
	if !ok {
		return fmt.Errorf("no queue for class %s", inv.Class)
	}

	inv.Status = models.InvocationQueued
	if err := d.invocations.SaveInvocation(ctx, inv); err != nil {
		return fmt.Errorf("failed to persist invocation: %w", err)
	}

	msg := models.QueueMessage{
		InvocationID: inv.ID,
		RunID:        inv.RunID,
		Step:         inv.Step,
		Class:        inv.Class,
	}
	if err := queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue invocation %s: %w", inv.ID, err)
	}

	d.logger.Debug().
		Str("invocation_id", inv.ID).
		Str("run_id", inv.RunID).
		Str("step", inv.Step.String()).
		Str("class", inv.Class.String()).
		Msg("Invocation submitted")

	return nil
}

// requeue re-enqueues a retryable invocation with a backoff delay. The
// invocation record is reused, not duplicated, which preserves the
// at-most-one-running-per-(run,step) invariant.
func (d *Dispatcher) requeue(ctx context.Context, inv *models.StageInvocation, delay time.Duration) error {
	queue, ok := d.queues[inv.Class]
	if !ok {
		return fmt.Errorf("no queue for class %s", inv.Class)
	}

	inv.Status = models.InvocationQueued
	if err := d.invocations.SaveInvocation(ctx, inv); err != nil {
		return fmt.Errorf("failed to persist requeued invocation: %w", err)
	}

	msg := models.QueueMessage{
		InvocationID: inv.ID,
		RunID:        inv.RunID,
		Step:         inv.Step,
		Class:        inv.Class,
	}
	return queue.EnqueueWithDelay(ctx, msg, delay)
}

// deadLetter records the terminal failure: marks the invocation
// failed_terminal, writes one immutable dead-letter entry carrying every
// attempt's error, and notifies the coordinator through the normal
// completion path.
func (d *Dispatcher) deadLetter(ctx context.Context, inv *models.StageInvocation, finalErr string) {
	now := time.Now()
	inv.Status = models.InvocationFailedTerminal
	inv.Error = finalErr
	inv.FinishedAt = &now
	if err := d.invocations.SaveInvocation(ctx, inv); err != nil {
		d.logger.Error().Err(err).Str("invocation_id", inv.ID).Msg("Failed to persist terminal invocation")
	}

	entry := &models.DeadLetterEntry{
		ID:            common.NewDeadLetterID(),
		InvocationID:  inv.ID,
		RunID:         inv.RunID,
		Step:          inv.Step,
		Class:         inv.Class,
		AttemptErrors: inv.AttemptErrors,
		FinalError:    finalErr,
		EnqueuedAt:    now,
	}
	if err := d.deadLetters.SaveDeadLetter(ctx, entry); err != nil {
		d.logger.Error().Err(err).Str("invocation_id", inv.ID).Msg("Failed to persist dead-letter entry")
	}

	if d.handler != nil {
		d.handler.OnInvocationComplete(ctx, inv)
	}
}

// handlePoison handles messages the queue evicted after too many
// redeliveries. Treated exactly like an exhausted retry: the workers holding
// this message kept disappearing without acknowledging.
func (d *Dispatcher) handlePoison(msg models.QueueMessage, receiveCount int) {
	ctx := context.Background()

	inv, err := d.invocations.GetInvocation(ctx, msg.InvocationID)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("invocation_id", msg.InvocationID).
			Msg("Poison message for unknown invocation, dropping")
		return
	}
	if inv.Status.IsTerminal() {
		return
	}

	inv.AttemptErrors = append(inv.AttemptErrors, models.AttemptError{
		Attempt:    inv.Attempt,
		Message:    fmt.Sprintf("worker lost: message redelivered %d times without acknowledgment", receiveCount),
		OccurredAt: time.Now(),
	})
	d.deadLetter(ctx, inv, "worker lost: visibility timeout exceeded on every delivery")
}
