package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

const sentimentSystemPrompt = "You are a financial sentiment analysis expert. Analyze the sentiment " +
	"of each news headline provided. For each headline, determine if the " +
	"sentiment is 'bullish', 'bearish', or 'neutral' from an investor's perspective."

const sentimentPromptTemplate = `Analyze the sentiment of each of the following news headlines.

Headlines:
%s

For each headline, provide your analysis in the following JSON format:
{
    "results": [
        {
            "headline": "the headline text",
            "sentiment": "bullish|bearish|neutral",
            "confidence": 0.0-1.0,
            "reasoning": "brief explanation"
        }
    ]
}

Respond ONLY with valid JSON, no additional text.`

// sentimentStep classifies each headline and aggregates the breakdown
type sentimentStep struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// sentimentResponse is the shape the model is asked to return
type sentimentResponse struct {
	Results []struct {
		Headline   string  `json:"headline"`
		Sentiment  string  `json:"sentiment"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	} `json:"results"`
}

func newSentimentStep(llm interfaces.LLMService, logger arbor.ILogger) *sentimentStep {
	return &sentimentStep{llm: llm, logger: logger}
}

// Execute runs per-headline sentiment classification over the fetched news
func (s *sentimentStep) Execute(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	var news models.NewsData
	if err := input.Dependency(models.StepFetchNews, &news); err != nil {
		return nil, err
	}

	headlines := make([]string, 0, len(news.Articles))
	for _, article := range news.Articles {
		if article.Title != "" {
			headlines = append(headlines, article.Title)
		}
	}
	if len(headlines) == 0 {
		// Nothing to classify; score stays 0 and the breakdown stays empty
		return &models.SentimentResult{Details: []models.SentimentDetail{}}, nil
	}

	var list strings.Builder
	for i, h := range headlines {
		fmt.Fprintf(&list, "%d. %s\n", i+1, h)
	}

	response, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: sentimentSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(sentimentPromptTemplate, list.String())},
	})
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed: %w", err)
	}

	var parsed sentimentResponse
	if err := json.Unmarshal([]byte(extractJSON(response)), &parsed); err != nil {
		// Malformed model output is worth a retry, not a dead letter
		return nil, fmt.Errorf("failed to parse sentiment response: %w", err)
	}

	result := &models.SentimentResult{Details: make([]models.SentimentDetail, 0, len(parsed.Results))}
	for _, r := range parsed.Results {
		label := normalizeSentiment(r.Sentiment)
		switch label {
		case models.SentimentBullish:
			result.Breakdown.Bullish++
		case models.SentimentBearish:
			result.Breakdown.Bearish++
		default:
			result.Breakdown.Neutral++
		}
		result.Details = append(result.Details, models.SentimentDetail{
			Headline:   r.Headline,
			Sentiment:  label,
			Confidence: r.Confidence,
			Reasoning:  r.Reasoning,
		})
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Int("headlines", len(headlines)).
		Int("bullish", result.Breakdown.Bullish).
		Int("bearish", result.Breakdown.Bearish).
		Int("neutral", result.Breakdown.Neutral).
		Msg("Sentiment analysis complete")

	return result, nil
}

// normalizeSentiment maps model output to a label, defaulting to neutral
func normalizeSentiment(s string) models.SentimentLabel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BULLISH":
		return models.SentimentBullish
	case "BEARISH":
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}
