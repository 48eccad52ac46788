package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Market      MarketConfig    `toml:"market"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

// QueueConfig configures the resource-class queues. Durations are strings
// ("1s", "5m") so the TOML stays readable; parse helpers convert them.
type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // how often workers poll for messages
	VisibilityTimeout string `toml:"visibility_timeout"` // message visibility timeout for redelivery
	MaxAttempts       int    `toml:"max_attempts"`       // attempts before dead-letter (default 3)
	RetryBaseDelay    string `toml:"retry_base_delay"`   // exponential backoff base
	RetryMaxDelay     string `toml:"retry_max_delay"`    // exponential backoff cap

	// Per-class worker concurrency
	FetchConcurrency     int `toml:"fetch_concurrency"`
	LLMConcurrency       int `toml:"llm_concurrency"`
	EmbedConcurrency     int `toml:"embed_concurrency"`
	AggregateConcurrency int `toml:"aggregate_concurrency"`

	// LLM-class calls are rate limited independently of concurrency
	LLMRequestsPerMinute int `toml:"llm_requests_per_minute"`

	// Per-class hard timeouts. The soft deadline handed to step functions is
	// the hard timeout minus soft_timeout_margin.
	FetchTimeout      string `toml:"fetch_timeout"`
	LLMTimeout        string `toml:"llm_timeout"`
	EmbedTimeout      string `toml:"embed_timeout"`
	AggregateTimeout  string `toml:"aggregate_timeout"`
	SoftTimeoutMargin string `toml:"soft_timeout_margin"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	InMemory       bool   `toml:"in_memory"`        // Run without a data directory (tests)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ClaudeConfig configures the Anthropic provider used by the LLM steps
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

// GeminiConfig configures the Google provider used for embeddings
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// MarketConfig configures the market data client (price series + news)
type MarketConfig struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	NewsLimit         int    `toml:"news_limit"` // headlines per fetch (default 10)
	PricePeriod       string `toml:"price_period"`
}

// SchedulerConfig configures periodic re-analysis of tracked tickers
type SchedulerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Schedule string   `toml:"schedule"` // Cron schedule format
	Tickers  []string `toml:"tickers"`  // Tickers to re-analyze on schedule
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:         "500ms",
			VisibilityTimeout:    "5m",
			MaxAttempts:          3,
			RetryBaseDelay:       "2s",
			RetryMaxDelay:        "60s",
			FetchConcurrency:     4,
			LLMConcurrency:       2,
			EmbedConcurrency:     2,
			AggregateConcurrency: 2,
			LLMRequestsPerMinute: 10,
			FetchTimeout:         "1m",
			LLMTimeout:           "3m",
			EmbedTimeout:         "2m",
			AggregateTimeout:     "1m",
			SoftTimeoutMargin:    "10s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/investiq",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   "2m",
		},
		Gemini: GeminiConfig{
			Model: "gemini-embedding-001",
		},
		Market: MarketConfig{
			BaseURL:           "https://eodhd.com/api",
			RequestsPerSecond: 10,
			NewsLimit:         10,
			PricePeriod:       "1y",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 6 * * *",
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults,
// then applies environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies INVESTIQ_* environment variables on top of
// file-based configuration. API keys are the usual case - they rarely
// belong in a checked-in TOML file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("INVESTIQ_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("INVESTIQ_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("INVESTIQ_MARKET_API_KEY"); v != "" {
		config.Market.APIKey = v
	}
	if v := os.Getenv("INVESTIQ_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("INVESTIQ_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks structural constraints and duration strings
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":       c.Queue.PollInterval,
		"queue.visibility_timeout":  c.Queue.VisibilityTimeout,
		"queue.retry_base_delay":    c.Queue.RetryBaseDelay,
		"queue.retry_max_delay":     c.Queue.RetryMaxDelay,
		"queue.fetch_timeout":       c.Queue.FetchTimeout,
		"queue.llm_timeout":         c.Queue.LLMTimeout,
		"queue.embed_timeout":       c.Queue.EmbedTimeout,
		"queue.aggregate_timeout":   c.Queue.AggregateTimeout,
		"queue.soft_timeout_margin": c.Queue.SoftTimeoutMargin,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}

	return nil
}

// MustParseDuration parses a duration string that Validate has already
// checked. Panics on failure - only call with validated config values.
func MustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", s, err))
	}
	return d
}
