package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/investiq/internal/interfaces"
)

// Action is the outcome of classifying a failed step execution
type Action int

const (
	// ActionRetry re-queues the invocation with a backoff delay
	ActionRetry Action = iota
	// ActionDeadLetter routes the invocation to the dead-letter store
	ActionDeadLetter
)

// Classification is the tagged result of the retry decision. The dispatcher
// invokes Classify after every failed execution; step functions never decide
// their own fate.
type Classification struct {
	Action Action
	Delay  time.Duration
}

// RetryPolicy configures attempt limits and backoff shape
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ContractError marks a programming/contract failure (malformed step output,
// missing required input). There is no transient cause, so it is never
// retried.
type ContractError struct {
	Err error
}

func (e *ContractError) Error() string {
	return "contract error: " + e.Err.Error()
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsContractError reports whether err represents a contract violation rather
// than a transient failure.
func IsContractError(err error) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return true
	}
	var mi *interfaces.MissingInputError
	return errors.As(err, &mi)
}

// IsRateLimitError checks for provider rate-limit responses. These are
// always worth retrying.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}

// Classify decides retry-or-dead-letter for a failed attempt. attempt is the
// 1-based number of the attempt that just failed.
func (p RetryPolicy) Classify(err error, attempt int) Classification {
	if IsContractError(err) {
		return Classification{Action: ActionDeadLetter}
	}
	if attempt >= p.MaxAttempts {
		return Classification{Action: ActionDeadLetter}
	}
	return Classification{Action: ActionRetry, Delay: p.Backoff(attempt)}
}

// Backoff computes the exponential delay before the next attempt:
// base * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// IsTimeout reports whether the error came from the hard timeout
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
