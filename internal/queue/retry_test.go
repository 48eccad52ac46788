package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

func TestClassify_TransientErrorRetries(t *testing.T) {
	policy := testPolicy()

	c := policy.Classify(errors.New("connection refused"), 1)

	if c.Action != ActionRetry {
		t.Fatalf("expected ActionRetry, got %v", c.Action)
	}
	if c.Delay != 2*time.Second {
		t.Errorf("expected base delay 2s, got %v", c.Delay)
	}
}

func TestClassify_ExhaustedAttemptsDeadLetters(t *testing.T) {
	policy := testPolicy()

	c := policy.Classify(errors.New("connection refused"), 3)

	if c.Action != ActionDeadLetter {
		t.Fatalf("expected ActionDeadLetter after final attempt, got %v", c.Action)
	}
}

func TestClassify_ContractErrorNeverRetries(t *testing.T) {
	policy := testPolicy()

	cases := []error{
		&ContractError{Err: errors.New("step output not serializable")},
		&interfaces.MissingInputError{Step: models.StepFetchNews},
		fmt.Errorf("executing step: %w", &interfaces.MissingInputError{Step: models.StepFetchPriceData}),
	}

	for _, err := range cases {
		c := policy.Classify(err, 1)
		if c.Action != ActionDeadLetter {
			t.Errorf("expected ActionDeadLetter on first attempt for %v, got %v", err, c.Action)
		}
	}
}

func TestClassify_RateLimitErrorRetriesUntilExhausted(t *testing.T) {
	policy := testPolicy()
	err := errors.New("API error 429: rate limit exceeded")

	if c := policy.Classify(err, 1); c.Action != ActionRetry {
		t.Errorf("attempt 1: expected retry, got %v", c.Action)
	}
	if c := policy.Classify(err, 2); c.Action != ActionRetry {
		t.Errorf("attempt 2: expected retry, got %v", c.Action)
	}
	if c := policy.Classify(err, 3); c.Action != ActionDeadLetter {
		t.Errorf("attempt 3: expected dead-letter, got %v", c.Action)
	}
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{8, 10 * time.Second},
	}

	for _, tt := range tests {
		got := policy.Backoff(tt.attempt)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsContractError(t *testing.T) {
	if IsContractError(errors.New("plain error")) {
		t.Error("plain error classified as contract error")
	}
	if !IsContractError(&ContractError{Err: errors.New("bad output")}) {
		t.Error("ContractError not detected")
	}
	if !IsContractError(&interfaces.MissingInputError{Step: models.StepSummarizeNews}) {
		t.Error("MissingInputError not detected")
	}
	wrapped := fmt.Errorf("outer: %w", &ContractError{Err: errors.New("inner")})
	if !IsContractError(wrapped) {
		t.Error("wrapped ContractError not detected")
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), false},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("RESOURCE_EXHAUSTED"), true},
		{errors.New("quota exceeded for project"), true},
		{errors.New("rate limit hit"), true},
	}

	for _, tt := range tests {
		if got := IsRateLimitError(tt.err); got != tt.want {
			t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if !IsTimeout(ctx.Err()) {
		t.Error("context.DeadlineExceeded not detected as timeout")
	}
	if IsTimeout(errors.New("not a timeout")) {
		t.Error("plain error detected as timeout")
	}
}
