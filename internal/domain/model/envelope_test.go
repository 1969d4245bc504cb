package model

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestParseObjectEvents_S3Notification(t *testing.T) {
	body := `{"Records":[{"eventName":"ObjectCreated:Put","eventTime":"2026-01-02T03:00:00.000Z",
		"s3":{"bucket":{"name":"data-bucket"},"object":{"key":"incoming/my+orders%282%29.csv"}}}]}`

	envs, err := ParseObjectEvents(body, parseNow)
	require.NoError(t, err)
	require.Len(t, envs, 1)

	assert.Equal(t, "data-bucket", envs[0].Bucket)
	assert.Equal(t, "incoming/my orders(2).csv", envs[0].Key)
	assert.Equal(t, "ObjectCreated:Put", envs[0].EventName)
	assert.Equal(t, "2026-01-02T03:00:00Z", envs[0].EventTime)
	assert.Equal(t, 0, envs[0].Attempt)
	assert.Equal(t, parseNow, envs[0].FirstSeenAt)
}

func TestParseObjectEvents_SkipsNonCreateRecords(t *testing.T) {
	body := `{"Records":[{"eventName":"ObjectRemoved:Delete","s3":{"bucket":{"name":"b"},"object":{"key":"incoming/a.csv"}}}]}`

	envs, err := ParseObjectEvents(body, parseNow)
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestParseObjectEvents_TestEvent(t *testing.T) {
	body := `{"Service":"Amazon S3","Event":"s3:TestEvent","Time":"2026-01-02T03:04:05.000Z","Bucket":"b"}`

	envs, err := ParseObjectEvents(body, parseNow)
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestParseObjectEvents_Envelope(t *testing.T) {
	in := FileEnvelope{Bucket: "b", Key: "incoming/orders.csv", Attempt: 3, MalformedRetries: 1}
	body, err := in.Marshal()
	require.NoError(t, err)

	envs, err := ParseObjectEvents(body, parseNow)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, 3, envs[0].Attempt)
	assert.Equal(t, 1, envs[0].MalformedRetries)
	assert.Equal(t, parseNow, envs[0].FirstSeenAt, "missing first-seen is filled in")
}

func TestParseObjectEvents_EventBridge(t *testing.T) {
	body := `{"source":"aws.s3","detail-type":"Object Created","time":"2026-01-02T03:00:00Z",
		"detail":{"bucket":{"name":"b"},"object":{"key":"output/orders/orders_nodes.csv"}}}`

	envs, err := ParseObjectEvents(body, parseNow)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "output/orders/orders_nodes.csv", envs[0].Key)
	assert.Equal(t, "2026-01-02T03:00:00Z", envs[0].EventTime)
}

func TestParseObjectEvents_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"not json":     "bucket=b,key=k",
		"unknown":      `{"hello":"world"}`,
		"missing key":  `{"bucket":"b","key":""}`,
		"negative try": `{"bucket":"b","key":"incoming/a.csv","attempt":-1}`,
		"bad escape":   `{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"b"},"object":{"key":"incoming/%zz.csv"}}}]}`,
		"other event":  `{"Event":"s3:Unknown"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseObjectEvents(body, parseNow)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEnvelope))
		})
	}
}

func TestEnvelopeFromS3Record(t *testing.T) {
	rec := events.S3EventRecord{EventName: "ObjectCreated:Put"}
	rec.S3.Bucket.Name = "b"
	rec.S3.Object.Key = "incoming/a%2Bb.csv"
	rec.S3.Object.URLDecodedKey = "incoming/a+b.csv"

	env := EnvelopeFromS3Record(rec, parseNow)
	assert.Equal(t, "incoming/a+b.csv", env.Key)
	assert.Equal(t, "2026-01-02T03:04:05Z", env.EventTime, "missing event time uses now")
	assert.Equal(t, 0, env.Attempt)

	rec.EventTime = time.Date(2026, 1, 2, 4, 0, 0, 500, time.FixedZone("x", 3600))
	env = EnvelopeFromS3Record(rec, parseNow)
	assert.Equal(t, "2026-01-02T03:00:00.0000005Z", env.EventTime)
}

func TestIsObjectCreated(t *testing.T) {
	assert.True(t, IsObjectCreated("ObjectCreated:CompleteMultipartUpload"))
	assert.False(t, IsObjectCreated("ObjectRemoved:Delete"))
}

func TestFileEnvelope_NextAttempt(t *testing.T) {
	env := FileEnvelope{Bucket: "b", Key: "k", Attempt: 2}
	next := env.NextAttempt("throttled")

	assert.Equal(t, 3, next.Attempt)
	assert.Equal(t, "throttled", next.LastError)
	assert.Equal(t, 2, env.Attempt, "original is unchanged")
}
