package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// ErrMalformedEnvelope is returned when a queue body cannot be turned into envelopes.
var ErrMalformedEnvelope = errors.New("malformed queue message body")

// FileEnvelope is the typed queue message body describing one object to process.
type FileEnvelope struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	EventName   string    `json:"eventName,omitempty"`
	EventTime   string    `json:"eventTime,omitempty"`
	Attempt     int       `json:"attempt"`
	FirstSeenAt time.Time `json:"firstSeenAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	// MalformedRetries counts transform responses that could not be parsed.
	MalformedRetries int `json:"malformedRetries,omitempty"`
}

// Validate checks that the envelope addresses an object.
func (e *FileEnvelope) Validate() error {
	if e == nil {
		return errors.New("envelope is required")
	}
	if strings.TrimSpace(e.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("key is required")
	}
	if e.Attempt < 0 {
		return errors.New("attempt must be >= 0")
	}
	return nil
}

// NextAttempt returns a copy of the envelope for the following attempt.
func (e FileEnvelope) NextAttempt(lastErr string) FileEnvelope {
	next := e
	next.Attempt = e.Attempt + 1
	next.LastError = lastErr
	return next
}

// Marshal encodes the envelope as a queue message body.
func (e FileEnvelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

type s3ObjectDetail struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// ParseObjectEvents decodes a queue body into zero or more envelopes.
//
// Accepted shapes: a FileEnvelope, an S3 event notification (Records), and an
// EventBridge "Object Created" event. The S3 test event yields no envelopes.
func ParseObjectEvents(body string, now time.Time) ([]FileEnvelope, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEnvelope)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	switch {
	case probe["Event"] != nil:
		var name string
		if err := json.Unmarshal(probe["Event"], &name); err != nil || name != "s3:TestEvent" {
			return nil, fmt.Errorf("%w: unrecognized S3 event %s", ErrMalformedEnvelope, probe["Event"])
		}
		return nil, nil
	case probe["Records"] != nil:
		return parseS3Event(trimmed, now)
	case probe["detail-type"] != nil:
		return parseEventBridge(trimmed, now)
	case probe["key"] != nil:
		var env FileEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
		}
		if err := env.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
		}
		if env.FirstSeenAt.IsZero() {
			env.FirstSeenAt = now.UTC()
		}
		return []FileEnvelope{env}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized shape", ErrMalformedEnvelope)
	}
}

// IsObjectCreated reports whether an S3 event name announces a new object.
func IsObjectCreated(eventName string) bool {
	return strings.HasPrefix(eventName, "ObjectCreated")
}

// EnvelopeFromS3Record converts one S3 notification record into an attempt-0
// envelope. A record without an event time is stamped with now.
func EnvelopeFromS3Record(rec events.S3EventRecord, now time.Time) FileEnvelope {
	key := rec.S3.Object.URLDecodedKey
	if key == "" {
		key = rec.S3.Object.Key
	}
	return FileEnvelope{
		Bucket:      rec.S3.Bucket.Name,
		Key:         key,
		EventName:   rec.EventName,
		EventTime:   formatEventTime(rec.EventTime, now),
		FirstSeenAt: now.UTC(),
	}
}

func formatEventTime(t, now time.Time) string {
	if t.IsZero() {
		t = now
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseS3Event(body string, now time.Time) ([]FileEnvelope, error) {
	var ev events.S3Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	out := make([]FileEnvelope, 0, len(ev.Records))
	for _, rec := range ev.Records {
		if !IsObjectCreated(rec.EventName) {
			continue
		}
		env := EnvelopeFromS3Record(rec, now)
		if err := env.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
		}
		out = append(out, env)
	}
	return out, nil
}

func parseEventBridge(body string, now time.Time) ([]FileEnvelope, error) {
	var ev events.CloudWatchEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if ev.DetailType != "Object Created" {
		return nil, nil
	}
	var detail s3ObjectDetail
	if err := json.Unmarshal(ev.Detail, &detail); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	env := FileEnvelope{
		Bucket:      detail.Bucket.Name,
		Key:         detail.Object.Key,
		EventName:   "ObjectCreated:" + ev.Source,
		EventTime:   formatEventTime(ev.Time, now),
		FirstSeenAt: now.UTC(),
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return []FileEnvelope{env}, nil
}
