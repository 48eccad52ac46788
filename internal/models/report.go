package models

import "time"

// AnalysisReport is the persisted terminal artifact of a successful run.
// Reports are immutable: a re-analysis writes a new row keyed by
// ticker+analyzed_at, and "latest per ticker" is a query, not an update.
type AnalysisReport struct {
	ID          string      `badgerhold:"key" json:"id"`
	RunID       string      `json:"run_id"`
	Ticker      string      `badgerhold:"index" json:"ticker"`
	Company     CompanyInfo `json:"company"`

	PriceData []PricePoint `json:"price_data"`

	NewsSummary        string             `json:"news_summary"`
	SentimentScore     float64            `json:"sentiment_score"`
	SentimentBreakdown SentimentBreakdown `json:"sentiment_breakdown"`
	SentimentDetails   []SentimentDetail  `json:"sentiment_details"`
	AIInsights         string             `json:"ai_insights"`

	// EmbeddingCoverage is false when embed_documents failed terminally and
	// the run proceeded degraded.
	EmbeddingCoverage bool `json:"embedding_coverage"`

	AnalyzedAt         time.Time     `badgerhold:"index" json:"analyzed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
	DataSources        []string      `json:"data_sources"`
}

// BreakdownPercentages converts the raw counts into the percentage view
// consumers render (positive/negative/neutral summing to ~100).
func (r *AnalysisReport) BreakdownPercentages() map[string]int {
	total := r.SentimentBreakdown.Total()
	if total == 0 {
		total = 1
	}
	return map[string]int{
		"positive": int(float64(r.SentimentBreakdown.Bullish)/float64(total)*100 + 0.5),
		"negative": int(float64(r.SentimentBreakdown.Bearish)/float64(total)*100 + 0.5),
		"neutral":  int(float64(r.SentimentBreakdown.Neutral)/float64(total)*100 + 0.5),
	}
}
