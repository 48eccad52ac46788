package interfaces

import "context"

// Message represents a chat message for LLM interactions
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMService abstracts the chat completion provider used by the sentiment,
// summary and insights steps.
type LLMService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
