package model

import (
	"errors"
	"strings"
	"time"
)

// LoadStatus is the normalized vocabulary every graph-engine status is mapped into.
type LoadStatus string

const (
	LoadStatusNotStarted          LoadStatus = "not_started"
	LoadStatusInProgress          LoadStatus = "in_progress"
	LoadStatusCompleted           LoadStatus = "completed"
	LoadStatusCompletedWithErrors LoadStatus = "completed_with_errors"
	LoadStatusFailed              LoadStatus = "failed"
	LoadStatusNotFound            LoadStatus = "not_found"
)

// Valid returns true if s is part of the normalized vocabulary.
func (s LoadStatus) Valid() bool {
	switch s {
	case LoadStatusNotStarted, LoadStatusInProgress, LoadStatusCompleted,
		LoadStatusCompletedWithErrors, LoadStatusFailed, LoadStatusNotFound:
		return true
	default:
		return false
	}
}

// Active reports whether the engine may still be working on the job.
func (s LoadStatus) Active() bool {
	return s == LoadStatusNotStarted || s == LoadStatusInProgress
}

// LoadError is one error reported by the graph engine, preserved verbatim.
type LoadError struct {
	ErrorCode    string `json:"errorCode"    dynamodbav:"errorCode"`
	ErrorMessage string `json:"errorMessage" dynamodbav:"errorMessage"`
	FileName     string `json:"fileName"     dynamodbav:"fileName"`
	RecordNum    int64  `json:"recordNum"    dynamodbav:"recordNum"`
}

// LoadPayload is the last known status snapshot of a bulk-load job.
type LoadPayload struct {
	OverallStatus string      `json:"overallStatus" dynamodbav:"overallStatus"`
	FeedCount     int         `json:"feedCount"     dynamodbav:"feedCount"`
	FailedFeeds   int         `json:"failedFeeds"   dynamodbav:"failedFeeds"`
	Errors        []LoadError `json:"errors"        dynamodbav:"errors"`
}

// BulkLoadJob is the record kept for each submitted graph bulk-load job.
type BulkLoadJob struct {
	LoadID         string      `json:"loadId"`
	SourceKey      string      `json:"sourceKey"`
	Source         string      `json:"source"`
	Status         LoadStatus  `json:"status"`
	Payload        LoadPayload `json:"payload"`
	StartTime      int64       `json:"startTime"`
	TotalTimeSpent int64       `json:"totalTimeSpent"`
	Error          *string     `json:"error,omitempty"`
	SubmittedAt    time.Time   `json:"submittedAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// FailedSubmissionPrefix marks load ids synthesized for submissions the engine rejected.
const FailedSubmissionPrefix = "failed-"

// IsFailedSubmission reports whether the record stands for a rejected submission.
func (j *BulkLoadJob) IsFailedSubmission() bool {
	return j != nil && strings.HasPrefix(j.LoadID, FailedSubmissionPrefix)
}

// Validate checks the fields required to persist the record.
func (j *BulkLoadJob) Validate() error {
	if j == nil {
		return errors.New("bulk load job is required")
	}
	if strings.TrimSpace(j.LoadID) == "" {
		return errors.New("loadId is required")
	}
	if !j.Status.Valid() {
		return errors.New("invalid status")
	}
	return nil
}

// UpdateLoadStatusParams carries a freshly fetched snapshot for an existing job.
type UpdateLoadStatusParams struct {
	LoadID         string
	Status         LoadStatus
	Payload        LoadPayload
	StartTime      int64
	TotalTimeSpent int64
	UpdatedAt      time.Time
}

// RecentLoadsQuery selects jobs submitted for a source key since a point in time.
type RecentLoadsQuery struct {
	SourceKey string
	Since     time.Time
}

// LoadRequest is what the bulk loader submits to the graph engine.
type LoadRequest struct {
	Source      string
	Format      string
	IAMRoleARN  string
	Region      string
	FailOnError bool
	Parallelism string
	// QueueRequest lets the engine queue the job behind running loads so node
	// files submitted before edge files are loaded first.
	QueueRequest                      bool
	UpdateSingleCardinalityProperties bool
}

// EngineLoadStatus is the graph engine's status response parsed once at the adapter boundary.
type EngineLoadStatus struct {
	// Found is false when the engine does not know the load id.
	Found          bool
	Status         string
	Payload        LoadPayload
	StartTime      int64
	TotalTimeSpent int64
}

// LoadStatusReport is the normalized answer to a status query.
type LoadStatusReport struct {
	LoadID         string      `json:"loadId"`
	Status         LoadStatus  `json:"status"`
	Payload        LoadPayload `json:"payload"`
	StartTime      int64       `json:"startTime,omitempty"`
	TotalTimeSpent int64       `json:"totalTimeSpent,omitempty"`
	SourceKey      string      `json:"sourceKey,omitempty"`
	Error          string      `json:"error,omitempty"`
}
