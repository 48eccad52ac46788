package models

// StepName identifies one unit of work in the analysis workflow
type StepName string

const (
	StepFetchPriceData   StepName = "fetch_price_data"
	StepFetchNews        StepName = "fetch_news"
	StepEmbedDocuments   StepName = "embed_documents"
	StepAnalyzeSentiment StepName = "analyze_sentiment"
	StepSummarizeNews    StepName = "summarize_news"
	StepGenerateInsights StepName = "generate_insights"
	StepAssembleReport   StepName = "assemble_report"
)

// String returns the string representation of the step name
func (s StepName) String() string {
	return string(s)
}

// IsValid checks if the step name is recognized
func (s StepName) IsValid() bool {
	switch s {
	case StepFetchPriceData, StepFetchNews, StepEmbedDocuments,
		StepAnalyzeSentiment, StepSummarizeNews, StepGenerateInsights,
		StepAssembleReport:
		return true
	}
	return false
}

// QueueClass is the resource class a step executes on. Separate classes keep
// cheap I/O fetches and expensive LLM calls from starving each other.
type QueueClass string

const (
	QueueClassFetch     QueueClass = "fetch"
	QueueClassLLM       QueueClass = "llm"
	QueueClassEmbed     QueueClass = "embed"
	QueueClassAggregate QueueClass = "aggregate"
)

// String returns the string representation of the queue class
func (c QueueClass) String() string {
	return string(c)
}

// AllQueueClasses returns every resource class in dispatch order
func AllQueueClasses() []QueueClass {
	return []QueueClass{QueueClassFetch, QueueClassLLM, QueueClassEmbed, QueueClassAggregate}
}
