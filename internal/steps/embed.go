package steps

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

// embedStep builds an embedding batch from the run's articles. It is the one
// non-critical step: the vectors feed later retrieval, not this run's report,
// so its terminal failure only degrades the run.
type embedStep struct {
	embeddings interfaces.EmbeddingService
	logger     arbor.ILogger
}

func newEmbedStep(embeddings interfaces.EmbeddingService, logger arbor.ILogger) *embedStep {
	return &embedStep{embeddings: embeddings, logger: logger}
}

// Execute embeds the fetched articles as one batch
func (s *embedStep) Execute(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	var news models.NewsData
	if err := input.Dependency(models.StepFetchNews, &news); err != nil {
		return nil, err
	}

	documents := make([]string, 0, len(news.Articles))
	for _, article := range news.Articles {
		doc := article.Title
		if article.Content != "" {
			doc += "\n" + article.Content
		}
		if doc != "" {
			documents = append(documents, doc)
		}
	}

	if len(documents) == 0 {
		return &models.EmbeddingResult{DocumentCount: 0}, nil
	}

	batchID, err := s.embeddings.EmbedDocuments(ctx, input.Ticker, documents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents for %s: %w", input.Ticker, err)
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Str("batch_id", batchID).
		Int("documents", len(documents)).
		Msg("Embedding batch stored")

	return &models.EmbeddingResult{
		BatchID:       batchID,
		DocumentCount: len(documents),
	}, nil
}
