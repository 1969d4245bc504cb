// Package model defines the records and value types shared by the ETL and bulk-load pipeline.
package model

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ETLStatus is the outcome of a single transform attempt.
type ETLStatus string

const (
	// ETLStatusPending marks an interim attempt that has been scheduled for retry.
	ETLStatusPending ETLStatus = "PENDING"
	// ETLStatusSuccess marks a file whose transformed output was written.
	ETLStatusSuccess ETLStatus = "SUCCESS"
	// ETLStatusFailed marks a file that will not be retried again.
	ETLStatusFailed ETLStatus = "FAILED"
)

// TimestampLayout is the fixed-width UTC layout used for sort keys.
// Fixed width keeps lexical order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t as a sortable sort-key string.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value produced by FormatTimestamp (or any RFC3339 value).
func ParseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// Valid returns true if the status is one of the known values.
func (s ETLStatus) Valid() bool {
	return s == ETLStatusPending || s == ETLStatusSuccess || s == ETLStatusFailed
}

// Terminal reports whether no further attempt follows a record with this status.
func (s ETLStatus) Terminal() bool {
	return s == ETLStatusSuccess || s == ETLStatusFailed
}

// ETLLogRecord is one attempt in the ETL audit trail. Records are appended, never mutated.
type ETLLogRecord struct {
	ID         string    `json:"id"                    dynamodbav:"id"                    db:"id"`
	Timestamp  string    `json:"timestamp"             dynamodbav:"timestamp"             db:"ts"`
	Status     ETLStatus `json:"status"                dynamodbav:"status"                db:"status"`
	FileName   string    `json:"file_name"             dynamodbav:"file_name"             db:"file_name"`
	Error      *string   `json:"error,omitempty"       dynamodbav:"error,omitempty"       db:"error"`
	Attempt    int       `json:"attempt"               dynamodbav:"attempt"               db:"attempt"`
	OutputKeys []string  `json:"output_keys,omitempty" dynamodbav:"output_keys,omitempty" db:"output_keys"`
	NodeLabel  string    `json:"node_label,omitempty"  dynamodbav:"node_label,omitempty"  db:"node_label"`
	// EventTime identifies the object-store event that produced this attempt.
	// Redeliveries of the same event carry the same value.
	EventTime string `json:"event_time,omitempty" dynamodbav:"event_time,omitempty" db:"event_time"`
}

// Validate checks the fields required to persist a record.
func (r *ETLLogRecord) Validate() error {
	if r == nil {
		return errors.New("record is required")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("id is required")
	}
	if r.Timestamp == "" {
		return errors.New("timestamp is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid status")
	}
	if r.Status == ETLStatusFailed && (r.Error == nil || *r.Error == "") {
		return errors.New("error is required for FAILED records")
	}
	return nil
}

// ErrorMessage returns the error detail or an empty string.
func (r *ETLLogRecord) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return *r.Error
}

// LatestETLRecord returns the authoritative record (latest timestamp) or nil for an empty slice.
func LatestETLRecord(records []*ETLLogRecord) *ETLLogRecord {
	var latest *ETLLogRecord
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if latest == nil || rec.Timestamp > latest.Timestamp {
			latest = rec
		}
	}
	return latest
}

// SortETLRecordsNewestFirst orders records by descending timestamp in place.
func SortETLRecordsNewestFirst(records []*ETLLogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

// ETLHistoryQuery selects the attempts recorded for one file.
type ETLHistoryQuery struct {
	ID    string
	Limit int
}

// Normalize trims the id and bounds the limit.
func (q *ETLHistoryQuery) Normalize() {
	q.ID = strings.TrimSpace(q.ID)
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
}
