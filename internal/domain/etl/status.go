package etl

import (
	"strings"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

var notStartedStatuses = map[string]struct{}{
	"LOAD_NOT_STARTED": {},
	"LOAD_QUEUED":      {},
	"NOT_STARTED":      {},
	"QUEUED":           {},
}

var inProgressStatuses = map[string]struct{}{
	"LOAD_IN_PROGRESS":                 {},
	"LOAD_IN_QUEUE":                    {},
	"LOAD_COMMITTED_W_WRITE_CONFLICTS": {},
	"IN_PROGRESS":                      {},
	"RUNNING":                          {},
}

var completedStatuses = map[string]struct{}{
	"LOAD_COMPLETED": {},
	"COMPLETED":      {},
	"SUCCEEDED":      {},
}

// failure markers cover LOAD_FAILED, LOAD_CANCELLED_*, LOAD_UNEXPECTED_ERROR,
// LOAD_S3_READ_ERROR, LOAD_DATA_DEADLOCK and similar engine codes.
var failureMarkers = []string{"FAIL", "CANCEL", "ERROR", "DEADLOCK", "UNRECOVERABLE"}

// RawLoadStatus returns the engine status string normalization is based on.
func RawLoadStatus(s model.EngineLoadStatus) string {
	raw := strings.TrimSpace(s.Payload.OverallStatus)
	if raw == "" {
		raw = strings.TrimSpace(s.Status)
	}
	return strings.ToUpper(raw)
}

// NormalizeLoadStatus maps a graph engine status response onto the normalized
// vocabulary. The mapping is a pure function of its input.
//
// Order of precedence: unknown job, still-running states, feed counts,
// terminal vocabulary. Unknown vocabulary is reported as in progress.
func NormalizeLoadStatus(s model.EngineLoadStatus) model.LoadStatus {
	if !s.Found {
		return model.LoadStatusNotFound
	}

	raw := RawLoadStatus(s)
	if _, ok := notStartedStatuses[raw]; ok {
		return model.LoadStatusNotStarted
	}
	if _, ok := inProgressStatuses[raw]; ok {
		return model.LoadStatusInProgress
	}

	feeds, failed := s.Payload.FeedCount, s.Payload.FailedFeeds
	switch {
	case feeds > 0 && failed >= feeds:
		return model.LoadStatusFailed
	case feeds > 0 && failed > 0:
		return model.LoadStatusCompletedWithErrors
	case feeds == 0 && failed > 0:
		return model.LoadStatusFailed
	}

	if _, ok := completedStatuses[raw]; ok {
		return model.LoadStatusCompleted
	}
	if isFailureStatus(raw) {
		return model.LoadStatusFailed
	}
	return model.LoadStatusInProgress
}

func isFailureStatus(raw string) bool {
	for _, marker := range failureMarkers {
		if strings.Contains(raw, marker) {
			return true
		}
	}
	return false
}
