package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

// assembleStep is the terminal aggregate: it validates the upstream outputs,
// builds the analysis report and persists it. Missing critical outputs are
// contract violations; missing non-critical outputs get explicit markers.
type assembleStep struct {
	runs    interfaces.RunStorage
	reports interfaces.ReportStorage
	logger  arbor.ILogger
}

// assembleOutput is the step's recorded output: a pointer to the persisted
// report, not the report itself.
type assembleOutput struct {
	ReportID   string    `json:"report_id"`
	Ticker     string    `json:"ticker"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

func newAssembleStep(runs interfaces.RunStorage, reports interfaces.ReportStorage, logger arbor.ILogger) *assembleStep {
	return &assembleStep{runs: runs, reports: reports, logger: logger}
}

// Execute assembles and persists the analysis report
func (s *assembleStep) Execute(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	var price models.PriceData
	if err := input.Dependency(models.StepFetchPriceData, &price); err != nil {
		return nil, err
	}
	var news models.NewsData
	if err := input.Dependency(models.StepFetchNews, &news); err != nil {
		return nil, err
	}
	var sentiment models.SentimentResult
	if err := input.Dependency(models.StepAnalyzeSentiment, &sentiment); err != nil {
		return nil, err
	}
	var summary models.SummaryResult
	if err := input.Dependency(models.StepSummarizeNews, &summary); err != nil {
		return nil, err
	}
	var insights models.InsightsResult
	if err := input.Dependency(models.StepGenerateInsights, &insights); err != nil {
		return nil, err
	}

	// Embedding output is the one tolerated absence
	embeddingCoverage := false
	if input.HasDependency(models.StepEmbedDocuments) {
		var embed models.EmbeddingResult
		if err := input.Dependency(models.StepEmbedDocuments, &embed); err == nil {
			embeddingCoverage = true
		}
	}

	newsSummary := summary.Summary
	if len(news.Articles) == 0 && newsSummary == "" {
		newsSummary = fmt.Sprintf("No recent news for %s.", input.Ticker)
	}

	analyzedAt := time.Now()
	var processingDuration time.Duration
	if run, err := s.runs.GetRun(ctx, input.RunID); err == nil {
		processingDuration = analyzedAt.Sub(run.CreatedAt)
	}

	report := &models.AnalysisReport{
		ID:                 common.NewReportID(),
		RunID:              input.RunID,
		Ticker:             input.Ticker,
		Company:            price.Company,
		PriceData:          price.Series,
		NewsSummary:        newsSummary,
		SentimentScore:     sentiment.Breakdown.Score(),
		SentimentBreakdown: sentiment.Breakdown,
		SentimentDetails:   sentiment.Details,
		AIInsights:         insights.Insights,
		EmbeddingCoverage:  embeddingCoverage,
		AnalyzedAt:         analyzedAt,
		ProcessingDuration: processingDuration,
		DataSources:        dataSources(price.Source, news.Source),
	}

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}

	s.logger.Info().
		Str("report_id", report.ID).
		Str("run_id", input.RunID).
		Str("ticker", input.Ticker).
		Float64("sentiment_score", report.SentimentScore).
		Bool("embedding_coverage", embeddingCoverage).
		Msg("Analysis report assembled")

	return &assembleOutput{
		ReportID:   report.ID,
		Ticker:     report.Ticker,
		AnalyzedAt: report.AnalyzedAt,
	}, nil
}

// dataSources deduplicates the non-empty provider names
func dataSources(sources ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
