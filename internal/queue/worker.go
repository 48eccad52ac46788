package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
	"golang.org/x/time/rate"
)

// WorkerPool drains one resource-class queue. Each worker polls, claims a
// message, executes the registered step function under the class timeout and
// reports the terminal outcome through the dispatcher.
type WorkerPool struct {
	class      models.QueueClass
	config     ClassConfig
	queue      interfaces.QueueManager
	dispatcher *Dispatcher
	limiter    *rate.Limiter // nil when the class is not rate limited
	logger     arbor.ILogger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a worker pool for one queue class
func NewWorkerPool(class models.QueueClass, config ClassConfig, queue interfaces.QueueManager, dispatcher *Dispatcher, limiter *rate.Limiter, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		class:      class,
		config:     config,
		queue:      queue,
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Str("class", wp.class.String()).
		Int("concurrency", wp.config.Concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Str("class", wp.class.String()).Msg("Stopping worker pool")
	wp.cancel()
}

// worker is the main poll loop
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polls across the interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("class", wp.class.String()).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && err != ErrNoMessage {
				wp.logger.Warn().
					Err(err).
					Str("class", wp.class.String()).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage receives and executes a single invocation
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	inv, err := wp.dispatcher.invocations.GetInvocation(wp.ctx, msg.InvocationID)
	if err != nil {
		// Invocation record gone (run archived); drop the message
		wp.logger.Warn().
			Err(err).
			Str("invocation_id", msg.InvocationID).
			Msg("Message references missing invocation, dropping")
		return deleteFn()
	}

	if inv.Status.IsTerminal() {
		// Redelivery raced a terminal transition; nothing to do
		return deleteFn()
	}

	def, ok := wp.dispatcher.registry.Get(inv.Step)
	if !ok {
		inv.AttemptErrors = append(inv.AttemptErrors, models.AttemptError{
			Attempt:    inv.Attempt + 1,
			Message:    fmt.Sprintf("no step function registered for %s", inv.Step),
			OccurredAt: time.Now(),
		})
		wp.dispatcher.deadLetter(wp.ctx, inv, "no step function registered")
		return deleteFn()
	}

	// LLM-class throttle: wait before burning an attempt. The visibility
	// timeout comfortably covers the wait.
	if wp.limiter != nil {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			return err
		}
	}

	// Claim the attempt. The record is reused across attempts, so this is
	// the only invocation in "running" for this (run, step).
	now := time.Now()
	inv.Attempt++
	inv.Status = models.InvocationRunning
	inv.StartedAt = &now
	if err := wp.dispatcher.invocations.SaveInvocation(wp.ctx, inv); err != nil {
		return fmt.Errorf("failed to mark invocation running: %w", err)
	}

	wp.logger.Debug().
		Str("invocation_id", inv.ID).
		Str("step", inv.Step.String()).
		Int("attempt", inv.Attempt).
		Int("worker_id", workerID).
		Msg("Executing step")

	output, execErr := wp.execute(def, inv)
	finished := time.Now()
	duration := finished.Sub(now)

	if execErr == nil {
		inv.Status = models.InvocationSucceeded
		inv.Output = output
		inv.Error = ""
		inv.FinishedAt = &finished
		if err := wp.dispatcher.invocations.SaveInvocation(wp.ctx, inv); err != nil {
			// Leave the message in flight; redelivery will retry the save path
			return fmt.Errorf("failed to persist succeeded invocation: %w", err)
		}

		wp.logger.Info().
			Str("invocation_id", inv.ID).
			Str("run_id", inv.RunID).
			Str("step", inv.Step.String()).
			Dur("duration", duration).
			Msg("Step succeeded")

		if err := deleteFn(); err != nil {
			wp.logger.Warn().Err(err).Str("invocation_id", inv.ID).Msg("Failed to acknowledge message")
		}
		wp.dispatcher.handler.OnInvocationComplete(wp.ctx, inv)
		return nil
	}

	// Failure path: record the attempt, then let the policy decide
	inv.AttemptErrors = append(inv.AttemptErrors, models.AttemptError{
		Attempt:    inv.Attempt,
		Message:    execErr.Error(),
		OccurredAt: finished,
	})

	decision := wp.dispatcher.config.Retry.Classify(execErr, inv.Attempt)
	switch decision.Action {
	case ActionRetry:
		inv.Status = models.InvocationFailedRetryable
		inv.Error = execErr.Error()
		if err := wp.dispatcher.invocations.SaveInvocation(wp.ctx, inv); err != nil {
			return fmt.Errorf("failed to persist retryable invocation: %w", err)
		}

		wp.logger.Warn().
			Err(execErr).
			Str("invocation_id", inv.ID).
			Str("step", inv.Step.String()).
			Int("attempt", inv.Attempt).
			Int("max_attempts", inv.MaxAttempts).
			Dur("retry_delay", decision.Delay).
			Msg("Step failed, will retry")

		if err := wp.dispatcher.requeue(wp.ctx, inv, decision.Delay); err != nil {
			return fmt.Errorf("failed to requeue invocation: %w", err)
		}

	case ActionDeadLetter:
		wp.logger.Error().
			Err(execErr).
			Str("invocation_id", inv.ID).
			Str("run_id", inv.RunID).
			Str("step", inv.Step.String()).
			Int("attempt", inv.Attempt).
			Msg("Step failed terminally")

		wp.dispatcher.deadLetter(wp.ctx, inv, execErr.Error())
	}

	return deleteFn()
}

// execute runs the step function under the class hard timeout and returns
// the marshaled output.
func (wp *WorkerPool) execute(def interfaces.StepDefinition, inv *models.StageInvocation) (json.RawMessage, error) {
	hardTimeout := def.Timeout
	if hardTimeout <= 0 {
		hardTimeout = wp.config.HardTimeout
	}

	ctx, cancel := context.WithTimeout(wp.ctx, hardTimeout)
	defer cancel()

	var input interfaces.StepInput
	if len(inv.Input) > 0 {
		if err := json.Unmarshal(inv.Input, &input); err != nil {
			return nil, &ContractError{Err: fmt.Errorf("malformed invocation input: %w", err)}
		}
	}
	input.RunID = inv.RunID
	input.SoftDeadline = time.Now().Add(hardTimeout - wp.config.SoftTimeoutMargin)

	result, err := def.Func(ctx, input)
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(result)
	if err != nil {
		return nil, &ContractError{Err: fmt.Errorf("step output not serializable: %w", err)}
	}
	return output, nil
}
