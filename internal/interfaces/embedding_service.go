package interfaces

import "context"

// EmbeddingService generates and stores embedding batches. The batch ID is a
// storage confirmation, not a downstream input.
type EmbeddingService interface {
	EmbedDocuments(ctx context.Context, ticker string, documents []string) (batchID string, err error)
	Close() error
}
