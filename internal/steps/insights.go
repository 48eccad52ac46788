package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

const insightsSystemPrompt = "You are InvestIQ, an expert AI financial analyst. Generate comprehensive " +
	"investment insights by analyzing market sentiment and recent news. " +
	"Provide balanced, informative analysis while reminding users this is not " +
	"financial advice."

// insightsStep synthesizes the sentiment breakdown and news summary into the
// final narrative insights section.
type insightsStep struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

func newInsightsStep(llm interfaces.LLMService, logger arbor.ILogger) *insightsStep {
	return &insightsStep{llm: llm, logger: logger}
}

// Execute generates investment insights from the enrichment outputs
func (s *insightsStep) Execute(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	var sentiment models.SentimentResult
	if err := input.Dependency(models.StepAnalyzeSentiment, &sentiment); err != nil {
		return nil, err
	}
	var summary models.SummaryResult
	if err := input.Dependency(models.StepSummarizeNews, &summary); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Generate investment insights for %s based on the following data:

## Sentiment Analysis
Overall score: %.2f (range -1 bearish to +1 bullish)
Headline breakdown: %d bullish, %d bearish, %d neutral

## News Summary
%s

Provide insights covering:
1. Overall outlook based on the sentiment and news flow
2. Key risks and opportunities
3. What investors should watch next

Keep it to 2-3 paragraphs and close with a reminder that this is not financial advice.`,
		input.Ticker,
		sentiment.Breakdown.Score(),
		sentiment.Breakdown.Bullish,
		sentiment.Breakdown.Bearish,
		sentiment.Breakdown.Neutral,
		summary.Summary,
	)

	insights, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: insightsSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("insights generation failed: %w", err)
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Msg("Insights generated")

	return &models.InsightsResult{
		Ticker:   input.Ticker,
		Insights: strings.TrimSpace(insights),
	}, nil
}
