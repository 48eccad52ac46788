package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewInvocationID generates a unique stage invocation ID with the "inv_" prefix
func NewInvocationID() string {
	return "inv_" + uuid.New().String()
}

// NewReportID generates a unique report ID with the "rpt_" prefix
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}

// NewDeadLetterID generates a unique dead-letter entry ID with the "dlq_" prefix
func NewDeadLetterID() string {
	return "dlq_" + uuid.New().String()
}

// NewBatchID generates a unique embedding batch ID with the "emb_" prefix
func NewBatchID() string {
	return "emb_" + uuid.New().String()
}
