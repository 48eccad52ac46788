package models

import "time"

// PricePoint is a single OHLCV price data point
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// CompanyInfo holds company metadata returned alongside the price series
type CompanyInfo struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// PriceData is the output of the fetch_price_data step
type PriceData struct {
	Company CompanyInfo  `json:"company"`
	Series  []PricePoint `json:"series"`
	Source  string       `json:"source"`
}

// NewsArticle is one headline with optional body content
type NewsArticle struct {
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsData is the output of the fetch_news step
type NewsData struct {
	Ticker   string        `json:"ticker"`
	Articles []NewsArticle `json:"articles"`
	Source   string        `json:"source"`
}

// SentimentLabel classifies a single headline
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "BULLISH"
	SentimentBearish SentimentLabel = "BEARISH"
	SentimentNeutral SentimentLabel = "NEUTRAL"
)

// SentimentDetail is the per-headline sentiment classification
type SentimentDetail struct {
	Headline   string         `json:"headline"`
	Sentiment  SentimentLabel `json:"sentiment"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// SentimentBreakdown counts headlines per label
type SentimentBreakdown struct {
	Bullish int `json:"bullish"`
	Bearish int `json:"bearish"`
	Neutral int `json:"neutral"`
}

// Total returns the number of classified headlines
func (b SentimentBreakdown) Total() int {
	return b.Bullish + b.Bearish + b.Neutral
}

// Score computes the aggregate sentiment score in [-1, 1]:
// (bullish - bearish) / total, 0 when nothing was classified.
func (b SentimentBreakdown) Score() float64 {
	total := b.Total()
	if total == 0 {
		return 0
	}
	return float64(b.Bullish-b.Bearish) / float64(total)
}

// SentimentResult is the output of the analyze_sentiment step
type SentimentResult struct {
	Breakdown SentimentBreakdown `json:"breakdown"`
	Details   []SentimentDetail  `json:"details"`
}

// SummaryResult is the output of the summarize_news step
type SummaryResult struct {
	Ticker  string `json:"ticker"`
	Summary string `json:"summary"`
}

// InsightsResult is the output of the generate_insights step
type InsightsResult struct {
	Ticker   string `json:"ticker"`
	Insights string `json:"insights"`
}

// EmbeddingResult is the output of the embed_documents step. The batch is a
// storage side-effect; nothing downstream consumes the vectors, only this
// confirmation.
type EmbeddingResult struct {
	BatchID       string `json:"batch_id"`
	DocumentCount int    `json:"document_count"`
}
