package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// SQS limits.
const (
	maxReceiveBatch            = 10
	maxLongPollSeconds         = 20
	maxVisibilitySeconds       = 43200
	maxDelaySeconds            = 900
	minSampleBytes       int64 = 1024
)

// ETLConfig tunes the throttle queue consumer and the processor's retry policy.
// Second-valued settings are plain integers to match the queue API.
type ETLConfig struct {
	MaxRetries         int     `env:"MAX_RETRIES"          envDefault:"10"`
	BaseBackoffSeconds float64 `env:"BASE_BACKOFF_SECONDS" envDefault:"10.0"`
	MaxBackoffSeconds  float64 `env:"MAX_BACKOFF_SECONDS"  envDefault:"100.0"`
	JitterFactor       float64 `env:"JITTER_FACTOR"        envDefault:"0.25"`

	MaxMessages       int `env:"MAX_MESSAGES"       envDefault:"5"`
	VisibilityTimeout int `env:"VISIBILITY_TIMEOUT" envDefault:"30"`
	// MsgDelay is the floor delay applied to every re-enqueue.
	MsgDelay        int `env:"MSG_DELAY"         envDefault:"5"`
	WaitTimeSeconds int `env:"WAIT_TIME_SECONDS" envDefault:"20"`

	SampleBytes       int64         `env:"ETL_SAMPLE_BYTES"       envDefault:"65536"`
	Interval          time.Duration `env:"ETL_CONSUMER_INTERVAL"  envDefault:"1m"`
	InvocationTimeout time.Duration `env:"ETL_INVOCATION_TIMEOUT" envDefault:"5m"`
	Concurrency       int           `env:"ETL_CONCURRENCY"        envDefault:"5"`
	LogWriteAttempts  int           `env:"LOG_WRITE_ATTEMPTS"     envDefault:"3"`

	// RecordPending writes a PENDING log record for every scheduled retry.
	RecordPending bool `env:"ETL_RECORD_PENDING" envDefault:"true"`
	// DeadLetterFailures leaves terminally failed messages on the queue so the
	// redrive policy moves them to the dead-letter queue.
	DeadLetterFailures bool `env:"ETL_DEAD_LETTER_FAILURES" envDefault:"true"`
}

// Sanitize clamps values to what the queue and the backoff policy accept.
func (c *ETLConfig) Sanitize() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoffSeconds <= 0 || math.IsNaN(c.BaseBackoffSeconds) {
		c.BaseBackoffSeconds = 10
	}
	if c.MaxBackoffSeconds < c.BaseBackoffSeconds || math.IsNaN(c.MaxBackoffSeconds) {
		c.MaxBackoffSeconds = c.BaseBackoffSeconds
	}
	if c.JitterFactor < 0 || math.IsNaN(c.JitterFactor) {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 0.99 {
		c.JitterFactor = 0.99
	}
	c.MaxMessages = clampInt(c.MaxMessages, 1, maxReceiveBatch)
	c.WaitTimeSeconds = clampInt(c.WaitTimeSeconds, 0, maxLongPollSeconds)
	c.VisibilityTimeout = clampInt(c.VisibilityTimeout, 1, maxVisibilitySeconds)
	c.MsgDelay = clampInt(c.MsgDelay, 0, maxDelaySeconds)
	if c.SampleBytes < minSampleBytes {
		c.SampleBytes = minSampleBytes
	}
	if c.Interval < time.Second {
		c.Interval = time.Second
	}
	if c.InvocationTimeout <= 0 {
		c.InvocationTimeout = 5 * time.Minute
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.LogWriteAttempts < 1 {
		c.LogWriteAttempts = 1
	}
}

// Validate checks relationships Sanitize cannot repair.
func (c *ETLConfig) Validate() error {
	if c.InvocationTimeout < c.Visibility() {
		return fmt.Errorf("ETL_INVOCATION_TIMEOUT (%s) must be >= VISIBILITY_TIMEOUT (%s)",
			c.InvocationTimeout, c.Visibility())
	}
	return nil
}

// BaseBackoff returns BASE_BACKOFF_SECONDS as a duration.
func (c *ETLConfig) BaseBackoff() time.Duration { return secondsToDuration(c.BaseBackoffSeconds) }

// MaxBackoff returns MAX_BACKOFF_SECONDS as a duration.
func (c *ETLConfig) MaxBackoff() time.Duration { return secondsToDuration(c.MaxBackoffSeconds) }

// Visibility returns VISIBILITY_TIMEOUT as a duration.
func (c *ETLConfig) Visibility() time.Duration {
	return time.Duration(c.VisibilityTimeout) * time.Second
}

// Delay returns MSG_DELAY as a duration.
func (c *ETLConfig) Delay() time.Duration { return time.Duration(c.MsgDelay) * time.Second }

// WaitTime returns WAIT_TIME_SECONDS as a duration.
func (c *ETLConfig) WaitTime() time.Duration { return time.Duration(c.WaitTimeSeconds) * time.Second }

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// TransformBackend selects the schema transform implementation.
type TransformBackend string

const (
	// TransformBackendStepFunctions runs the schema translator workflow synchronously.
	TransformBackendStepFunctions TransformBackend = "stepfunctions"
	// TransformBackendBedrock calls the model directly through the Converse API.
	TransformBackendBedrock TransformBackend = "bedrock"
)

// TransformConfig selects and configures the schema transformer.
type TransformConfig struct {
	Backend         TransformBackend `env:"TRANSFORM_BACKEND"                   envDefault:"stepfunctions"`
	StateMachineARN string           `env:"SCHEMA_TRANSLATOR_STATE_MACHINE_ARN"`
	BedrockModelID  string           `env:"BEDROCK_MODEL_ID"                    envDefault:"us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	MaxTokens       int32            `env:"BEDROCK_MAX_TOKENS"                  envDefault:"4096"`
	Temperature     float32          `env:"BEDROCK_TEMPERATURE"                 envDefault:"0"`
}

// Sanitize normalizes the backend name.
func (c *TransformConfig) Sanitize() {
	c.Backend = TransformBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = TransformBackendStepFunctions
	}
	c.StateMachineARN = strings.TrimSpace(c.StateMachineARN)
	c.BedrockModelID = strings.TrimSpace(c.BedrockModelID)
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// Validate checks the selected backend has what it needs.
func (c *TransformConfig) Validate() error {
	switch c.Backend {
	case TransformBackendStepFunctions:
		if c.StateMachineARN == "" {
			return errors.New("SCHEMA_TRANSLATOR_STATE_MACHINE_ARN is required for the stepfunctions transform backend")
		}
	case TransformBackendBedrock:
		if c.BedrockModelID == "" {
			return errors.New("BEDROCK_MODEL_ID is required for the bedrock transform backend")
		}
	default:
		return fmt.Errorf("invalid TRANSFORM_BACKEND %q (valid options: stepfunctions, bedrock)", c.Backend)
	}
	return nil
}

// GraphConfig configures the graph engine's bulk loader endpoint.
type GraphConfig struct {
	// Endpoint is the cluster base URL, e.g. https://cluster.example:8182.
	Endpoint      string `env:"GRAPH_ENDPOINT"`
	LoaderRoleARN string `env:"GRAPH_LOADER_ROLE_ARN"`
	Format        string `env:"GRAPH_LOAD_FORMAT"        envDefault:"csv"`
	IAMAuth       bool   `env:"GRAPH_IAM_AUTH"           envDefault:"false"`
	Parallelism   string `env:"GRAPH_LOAD_PARALLELISM"   envDefault:"MEDIUM"`
	FailOnError   bool   `env:"GRAPH_LOAD_FAIL_ON_ERROR" envDefault:"false"`
	// UpdateSingleCardinality lets reloads overwrite single-cardinality properties.
	UpdateSingleCardinality bool          `env:"GRAPH_LOAD_UPDATE_SINGLE_CARDINALITY" envDefault:"true"`
	RequestTimeout          time.Duration `env:"GRAPH_REQUEST_TIMEOUT"                envDefault:"30s"`
}

// Sanitize normalizes the endpoint and load options.
func (c *GraphConfig) Sanitize() {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	c.LoaderRoleARN = strings.TrimSpace(c.LoaderRoleARN)
	if c.Format = strings.ToLower(strings.TrimSpace(c.Format)); c.Format == "" {
		c.Format = "csv"
	}
	switch p := strings.ToUpper(strings.TrimSpace(c.Parallelism)); p {
	case "LOW", "MEDIUM", "HIGH", "OVERSUBSCRIBE":
		c.Parallelism = p
	default:
		c.Parallelism = "MEDIUM"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// BulkLoadConfig tunes the bulk loader.
type BulkLoadConfig struct {
	// DedupWindow suppresses repeat submissions for the same output key.
	DedupWindow       time.Duration `env:"BULK_LOAD_DEDUP_WINDOW"        envDefault:"5m"`
	Concurrency       int           `env:"BULK_LOADER_CONCURRENCY"       envDefault:"2"`
	MaxMessages       int           `env:"BULK_LOADER_MAX_MESSAGES"      envDefault:"10"`
	WaitTimeSeconds   int           `env:"BULK_LOADER_WAIT_TIME_SECONDS" envDefault:"20"`
	VisibilityTimeout int           `env:"BULK_LOADER_VISIBILITY"        envDefault:"60"`
}

// Sanitize clamps queue settings and the de-duplication window.
func (c *BulkLoadConfig) Sanitize() {
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	c.MaxMessages = clampInt(c.MaxMessages, 1, maxReceiveBatch)
	c.WaitTimeSeconds = clampInt(c.WaitTimeSeconds, 0, maxLongPollSeconds)
	c.VisibilityTimeout = clampInt(c.VisibilityTimeout, 1, maxVisibilitySeconds)
}
