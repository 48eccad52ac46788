package steps

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

// Dependencies carries the services the step implementations need
type Dependencies struct {
	Market     interfaces.MarketDataService
	LLM        interfaces.LLMService
	Embeddings interfaces.EmbeddingService
	Runs       interfaces.RunStorage
	Reports    interfaces.ReportStorage
	NewsLimit  int
	Logger     arbor.ILogger
}

// RegisterAll registers the complete workflow. Criticality is fixed here:
// embed_documents is the only step whose terminal failure a run survives.
func RegisterAll(registry interfaces.StepRegistry, deps Dependencies) error {
	market := newMarketSteps(deps.Market, deps.NewsLimit, deps.Logger)
	sentiment := newSentimentStep(deps.LLM, deps.Logger)
	summarize := newSummarizeStep(deps.LLM, deps.Logger)
	insights := newInsightsStep(deps.LLM, deps.Logger)
	embed := newEmbedStep(deps.Embeddings, deps.Logger)
	assemble := newAssembleStep(deps.Runs, deps.Reports, deps.Logger)

	defs := []interfaces.StepDefinition{
		{
			Name:     models.StepFetchPriceData,
			Class:    models.QueueClassFetch,
			Critical: true,
			Func:     market.FetchPriceData,
		},
		{
			Name:     models.StepFetchNews,
			Class:    models.QueueClassFetch,
			Critical: true,
			Func:     market.FetchNews,
		},
		{
			Name:     models.StepEmbedDocuments,
			Class:    models.QueueClassEmbed,
			Critical: false,
			Func:     embed.Execute,
		},
		{
			Name:     models.StepAnalyzeSentiment,
			Class:    models.QueueClassLLM,
			Critical: true,
			Func:     sentiment.Execute,
		},
		{
			Name:     models.StepSummarizeNews,
			Class:    models.QueueClassLLM,
			Critical: true,
			Func:     summarize.Execute,
		},
		{
			Name:     models.StepGenerateInsights,
			Class:    models.QueueClassLLM,
			Critical: true,
			Func:     insights.Execute,
		},
		{
			Name:     models.StepAssembleReport,
			Class:    models.QueueClassAggregate,
			Critical: true,
			Func:     assemble.Execute,
		},
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}
