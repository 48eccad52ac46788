package workflow

import (
	"github.com/ternarybob/investiq/internal/models"
)

// The analysis workflow is a fixed four-stage DAG over seven steps:
//
//	stage 1  fetch_price_data, fetch_news        (no deps, concurrent)
//	stage 2  embed_documents, analyze_sentiment,
//	         summarize_news                      (need both fetches, concurrent)
//	stage 3  generate_insights                   (needs sentiment + summary)
//	stage 4  assemble_report                     (needs everything above)
//
// The graph is plain data; the coordinator walks it generically. A step is
// runnable once every dependency has settled, meaning it succeeded or its
// terminal failure was tolerated as non-critical.

// TotalSteps is the number of steps in a complete run
const TotalSteps = 7

// dependencies lists the upstream steps each step waits on
var dependencies = map[models.StepName][]models.StepName{
	models.StepFetchPriceData: {},
	models.StepFetchNews:      {},
	models.StepEmbedDocuments: {
		models.StepFetchPriceData,
		models.StepFetchNews,
	},
	models.StepAnalyzeSentiment: {
		models.StepFetchPriceData,
		models.StepFetchNews,
	},
	models.StepSummarizeNews: {
		models.StepFetchPriceData,
		models.StepFetchNews,
	},
	models.StepGenerateInsights: {
		models.StepAnalyzeSentiment,
		models.StepSummarizeNews,
	},
	models.StepAssembleReport: {
		models.StepFetchPriceData,
		models.StepFetchNews,
		models.StepEmbedDocuments,
		models.StepAnalyzeSentiment,
		models.StepSummarizeNews,
		models.StepGenerateInsights,
	},
}

// stages groups steps by pipeline stage for progress labeling
var stages = []struct {
	Label string
	Steps []models.StepName
}{
	{"fetching", []models.StepName{models.StepFetchPriceData, models.StepFetchNews}},
	{"enriching", []models.StepName{models.StepEmbedDocuments, models.StepAnalyzeSentiment, models.StepSummarizeNews}},
	{"generating_insights", []models.StepName{models.StepGenerateInsights}},
	{"finalizing", []models.StepName{models.StepAssembleReport}},
}

// Steps returns every step in stage order
func Steps() []models.StepName {
	out := make([]models.StepName, 0, TotalSteps)
	for _, st := range stages {
		out = append(out, st.Steps...)
	}
	return out
}

// Dependencies returns the upstream steps the given step waits on
func Dependencies(step models.StepName) []models.StepName {
	return dependencies[step]
}

// Runnable returns the steps whose dependencies have all settled and that are
// not themselves settled. The caller filters out steps it already dispatched.
func Runnable(settled map[models.StepName]bool) []models.StepName {
	var out []models.StepName
	for _, step := range Steps() {
		if settled[step] {
			continue
		}
		ready := true
		for _, dep := range dependencies[step] {
			if !settled[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, step)
		}
	}
	return out
}

// StageLabel returns the label of the lowest stage that still has an
// unsettled step, or "completed" when everything has settled.
func StageLabel(settled map[models.StepName]bool) string {
	for _, st := range stages {
		for _, step := range st.Steps {
			if !settled[step] {
				return st.Label
			}
		}
	}
	return "completed"
}
