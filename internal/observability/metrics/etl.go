// Package metrics emits the pipeline's StatsD metrics with a fixed tag vocabulary.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ETLMetric captures one ETL attempt outcome.
type ETLMetric struct {
	// Status is the ETL log status written for the attempt, or "skipped".
	Status        string
	TransformKind string
	Attempt       int
	Duration      time.Duration
	Err           error
}

// EmitETLTransition emits etl.transition and etl.duration.
func EmitETLTransition(sink statsd.Sink, in ETLMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"status":  in.Status,
		"attempt": attemptBucket(in.Attempt),
	}
	if in.TransformKind != "" {
		tags["transform"] = in.TransformKind
	}
	if class := obserrors.Classify(in.Err); class != "" {
		tags["error_class"] = class
	}
	sink.Count("etl.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("etl.duration", in.Duration, CloneTags(tags))
	}
}

// BatchMetric summarizes one receive-and-process cycle of the throttle consumer.
type BatchMetric struct {
	Received  int
	Succeeded int
	Retried   int
	Failed    int
	Unacked   int
	Duration  time.Duration
}

// EmitBatch emits per-batch counters.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}
	sink.Count("etl.batch.received", int64(in.Received), nil)
	sink.Count("etl.batch.succeeded", int64(in.Succeeded), nil)
	sink.Count("etl.batch.retried", int64(in.Retried), nil)
	sink.Count("etl.batch.failed", int64(in.Failed), nil)
	sink.Count("etl.batch.unacked", int64(in.Unacked), nil)
	if in.Duration > 0 {
		sink.Timing("etl.batch.duration", in.Duration, nil)
	}
}

// Bulk-load transitions.
const (
	LoadSubmitted = "submitted"
	LoadDeduped   = "deduped"
	LoadRejected  = "rejected"
	LoadChecked   = "status_checked"
)

// BulkLoadMetric captures a bulk-load submission or status check.
type BulkLoadMetric struct {
	Transition string
	Status     string
	Duration   time.Duration
	Err        error
}

// EmitBulkLoad emits bulkload.transition and bulkload.duration.
func EmitBulkLoad(sink statsd.Sink, in BulkLoadMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Transition == LoadDeduped:
		result = ResultNoop
	}
	tags := map[string]string{
		"transition": in.Transition,
		"result":     result,
	}
	if in.Status != "" {
		tags["status"] = in.Status
	}
	if class := obserrors.Classify(in.Err); class != "" {
		tags["error_class"] = class
	}
	sink.Count("bulkload.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("bulkload.duration", in.Duration, CloneTags(tags))
	}
}

// attemptBucket keeps the attempt tag low-cardinality.
func attemptBucket(n int) string {
	switch {
	case n <= 0:
		return "0"
	case n <= 3:
		return strconv.Itoa(n)
	default:
		return "4+"
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
