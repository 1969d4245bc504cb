// Package notify defines the failure payload fanned out to Slack and PagerDuty.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageETL      Stage = "etl"
	StageBulkLoad Stage = "bulk_load"
)

// PipelineFailurePayload captures the canonical data we emit for terminal pipeline failures.
type PipelineFailurePayload struct {
	Stage Stage
	// Subject is the file key for ETL failures and the load id for bulk-load failures.
	Subject    string
	FileName   string
	LoadID     string
	Attempt    int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming pipeline failure notifications.
type Sink interface {
	SendPipelineFailure(ctx context.Context, payload PipelineFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload PipelineFailurePayload) error

// SendPipelineFailure implements the Sink interface.
func (f SinkFunc) SendPipelineFailure(ctx context.Context, payload PipelineFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
