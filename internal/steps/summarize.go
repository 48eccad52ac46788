package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

const summarySystemPrompt = "You are a financial news analyst. Your task is to summarize news articles " +
	"about a specific stock, highlighting key developments, market implications, " +
	"and important events that investors should know about."

const (
	maxSummaryArticles = 10
	maxArticleContent  = 500
)

// summarizeStep condenses the fetched articles into a short narrative summary
type summarizeStep struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

func newSummarizeStep(llm interfaces.LLMService, logger arbor.ILogger) *summarizeStep {
	return &summarizeStep{llm: llm, logger: logger}
}

// Execute summarizes the run's news articles
func (s *summarizeStep) Execute(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	var news models.NewsData
	if err := input.Dependency(models.StepFetchNews, &news); err != nil {
		return nil, err
	}

	if len(news.Articles) == 0 {
		return &models.SummaryResult{
			Ticker:  input.Ticker,
			Summary: fmt.Sprintf("No recent news for %s.", input.Ticker),
		}, nil
	}

	var articles strings.Builder
	for i, article := range news.Articles {
		if i >= maxSummaryArticles {
			break
		}
		fmt.Fprintf(&articles, "\n--- Article %d ---\n", i+1)
		fmt.Fprintf(&articles, "Title: %s\n", article.Title)
		if article.Content != "" {
			fmt.Fprintf(&articles, "Content: %s\n", truncate(article.Content, maxArticleContent))
		}
	}

	prompt := fmt.Sprintf(`Summarize the following news articles about %s.
%s
Provide a comprehensive but concise summary (2-3 paragraphs) that covers:
1. Key developments and announcements
2. Market sentiment and analyst opinions (if mentioned)
3. Potential impact on the stock

Focus on the most important and recent information.`, input.Ticker, articles.String())

	summary, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("news summarization failed: %w", err)
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Int("articles", len(news.Articles)).
		Msg("News summary generated")

	return &models.SummaryResult{
		Ticker:  input.Ticker,
		Summary: strings.TrimSpace(summary),
	}, nil
}
