package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
	"google.golang.org/genai"
)

const defaultModel = "gemini-embedding-001"

// batchRecord is the persisted form of one embedding batch
type batchRecord struct {
	BatchID   string      `json:"batch_id"`
	Ticker    string      `json:"ticker"`
	Model     string      `json:"model"`
	Documents []string    `json:"documents"`
	Vectors   [][]float32 `json:"vectors"`
	CreatedAt time.Time   `json:"created_at"`
}

// GeminiService generates embedding batches via the Gemini API and persists
// them to the key-value store for later retrieval workloads.
type GeminiService struct {
	client *genai.Client
	model  string
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

var _ interfaces.EmbeddingService = (*GeminiService)(nil)

// NewGeminiService creates an embedding service from the application config
func NewGeminiService(ctx context.Context, cfg *common.GeminiConfig, kv interfaces.KeyValueStorage, logger arbor.ILogger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set INVESTIQ_GEMINI_API_KEY or gemini.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("model", model).
		Msg("Gemini embedding service initialized")

	return &GeminiService{
		client: client,
		model:  model,
		kv:     kv,
		logger: logger,
	}, nil
}

// EmbedDocuments embeds the documents as one batch and stores the result.
// The returned batch ID is the storage confirmation.
func (s *GeminiService) EmbedDocuments(ctx context.Context, ticker string, documents []string) (string, error) {
	if len(documents) == 0 {
		return "", fmt.Errorf("no documents to embed")
	}

	contents := make([]*genai.Content, 0, len(documents))
	for _, doc := range documents {
		contents = append(contents, genai.NewContentFromText(doc, genai.RoleUser))
	}

	result, err := s.client.Models.EmbedContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil || len(result.Embeddings) != len(documents) {
		return "", fmt.Errorf("embedding count mismatch: sent %d documents, got %d vectors", len(documents), len(result.Embeddings))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return "", fmt.Errorf("empty embedding vector at index %d", i)
		}
		vectors[i] = emb.Values
	}

	record := batchRecord{
		BatchID:   common.NewBatchID(),
		Ticker:    ticker,
		Model:     s.model,
		Documents: documents,
		Vectors:   vectors,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal embedding batch: %w", err)
	}
	if err := s.kv.Set(ctx, batchKey(ticker, record.BatchID), data); err != nil {
		return "", fmt.Errorf("failed to persist embedding batch: %w", err)
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Str("batch_id", record.BatchID).
		Int("documents", len(documents)).
		Int("dimension", len(vectors[0])).
		Msg("Embedding batch persisted")

	return record.BatchID, nil
}

// Close releases resources
func (s *GeminiService) Close() error {
	return nil
}

func batchKey(ticker, batchID string) string {
	return fmt.Sprintf("embeddings:%s:%s", ticker, batchID)
}
