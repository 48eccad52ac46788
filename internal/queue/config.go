package queue

import (
	"time"

	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/models"
)

// ClassConfig holds the runtime configuration for one resource-class queue
type ClassConfig struct {
	// PollInterval is how often workers poll for messages
	PollInterval time.Duration

	// Concurrency is the number of concurrent workers for this class
	Concurrency int

	// VisibilityTimeout is the message visibility timeout for redelivery
	VisibilityTimeout time.Duration

	// MaxReceive is the maximum times a message can be received before the
	// poison hand-off fires (crash-looping workers)
	MaxReceive int

	// HardTimeout bounds a single step execution
	HardTimeout time.Duration

	// SoftTimeoutMargin is subtracted from HardTimeout to compute the soft
	// deadline handed to step functions
	SoftTimeoutMargin time.Duration

	// RequestsPerMinute rate-limits executions for this class (0 = unlimited)
	RequestsPerMinute int

	// QueueName is the key prefix for this class in Badger
	QueueName string
}

// Config holds per-class queue configuration plus the shared retry policy
type Config struct {
	Classes map[models.QueueClass]ClassConfig
	Retry   RetryPolicy
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return FromAppConfig(&common.DefaultConfig().Queue)
}

// FromAppConfig builds the runtime queue configuration from the validated
// application config.
func FromAppConfig(qc *common.QueueConfig) Config {
	poll := common.MustParseDuration(qc.PollInterval)
	visibility := common.MustParseDuration(qc.VisibilityTimeout)
	softMargin := common.MustParseDuration(qc.SoftTimeoutMargin)

	classes := map[models.QueueClass]ClassConfig{
		models.QueueClassFetch: {
			PollInterval:      poll,
			Concurrency:       qc.FetchConcurrency,
			VisibilityTimeout: visibility,
			MaxReceive:        qc.MaxAttempts,
			HardTimeout:       common.MustParseDuration(qc.FetchTimeout),
			SoftTimeoutMargin: softMargin,
			QueueName:         "investiq_fetch",
		},
		models.QueueClassLLM: {
			PollInterval:      poll,
			Concurrency:       qc.LLMConcurrency,
			VisibilityTimeout: visibility,
			MaxReceive:        qc.MaxAttempts,
			HardTimeout:       common.MustParseDuration(qc.LLMTimeout),
			SoftTimeoutMargin: softMargin,
			RequestsPerMinute: qc.LLMRequestsPerMinute,
			QueueName:         "investiq_llm",
		},
		models.QueueClassEmbed: {
			PollInterval:      poll,
			Concurrency:       qc.EmbedConcurrency,
			VisibilityTimeout: visibility,
			MaxReceive:        qc.MaxAttempts,
			HardTimeout:       common.MustParseDuration(qc.EmbedTimeout),
			SoftTimeoutMargin: softMargin,
			QueueName:         "investiq_embed",
		},
		models.QueueClassAggregate: {
			PollInterval:      poll,
			Concurrency:       qc.AggregateConcurrency,
			VisibilityTimeout: visibility,
			MaxReceive:        qc.MaxAttempts,
			HardTimeout:       common.MustParseDuration(qc.AggregateTimeout),
			SoftTimeoutMargin: softMargin,
			QueueName:         "investiq_aggregate",
		},
	}

	return Config{
		Classes: classes,
		Retry: RetryPolicy{
			MaxAttempts: qc.MaxAttempts,
			BaseDelay:   common.MustParseDuration(qc.RetryBaseDelay),
			MaxDelay:    common.MustParseDuration(qc.RetryMaxDelay),
		},
	}
}
