package config

import "strings"

// AWSConfig selects the region and an optional endpoint override (LocalStack).
type AWSConfig struct {
	Region      string `env:"AWS_REGION"       envDefault:"us-east-1"`
	EndpointURL string `env:"AWS_ENDPOINT_URL"`
}

// Sanitize trims values and restores the default region.
func (c *AWSConfig) Sanitize() {
	c.Region = strings.TrimSpace(c.Region)
	c.EndpointURL = strings.TrimSpace(c.EndpointURL)
	if c.Region == "" {
		c.Region = "us-east-1"
	}
}

// StorageConfig describes the data bucket layout.
type StorageConfig struct {
	Bucket         string `env:"DATA_BUCKET"`
	IncomingPrefix string `env:"INCOMING_PREFIX" envDefault:"incoming/"`
	OutputPrefix   string `env:"OUTPUT_PREFIX"   envDefault:"output/"`
	// SchemaKey holds the standing graph schema handed to the transformer.
	SchemaKey string `env:"SCHEMA_KEY" envDefault:"schema/graph_schema.txt"`
}

// Sanitize normalizes prefixes to end with a single slash.
func (c *StorageConfig) Sanitize() {
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.IncomingPrefix = normalizePrefix(c.IncomingPrefix, "incoming/")
	c.OutputPrefix = normalizePrefix(c.OutputPrefix, "output/")
	c.SchemaKey = strings.TrimLeft(strings.TrimSpace(c.SchemaKey), "/")
}

func normalizePrefix(p, def string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return def
	}
	return p + "/"
}

// QueueConfig holds the queue URLs and the redrive policy mirrored from the queue definition.
type QueueConfig struct {
	ETLQueueURL  string `env:"ETL_QUEUE_URL"`
	ETLDLQURL    string `env:"ETL_DLQ_URL"`
	LoadQueueURL string `env:"LOAD_QUEUE_URL"`
	// MaxReceiveCount must match the redrive policy of ETL_QUEUE_URL.
	MaxReceiveCount int `env:"MAX_RECEIVE_COUNT" envDefault:"8"`
}

// Sanitize trims URLs and enforces a positive receive count.
func (c *QueueConfig) Sanitize() {
	c.ETLQueueURL = strings.TrimSpace(c.ETLQueueURL)
	c.ETLDLQURL = strings.TrimSpace(c.ETLDLQURL)
	c.LoadQueueURL = strings.TrimSpace(c.LoadQueueURL)
	if c.MaxReceiveCount < 1 {
		c.MaxReceiveCount = 1
	}
}

// TablesConfig names the DynamoDB tables backing the logs.
type TablesConfig struct {
	ETLLogTable   string `env:"ETL_LOG_TABLE"   envDefault:"etl-log"`
	BulkLoadTable string `env:"BULK_LOAD_TABLE" envDefault:"bulk-load-log"`
	// BulkLoadSourceIndex is a GSI on sourceKey (hash) and submittedAt (range).
	BulkLoadSourceIndex string `env:"BULK_LOAD_SOURCE_INDEX" envDefault:"sourceKey-index"`
}

// Sanitize trims table names.
func (c *TablesConfig) Sanitize() {
	c.ETLLogTable = strings.TrimSpace(c.ETLLogTable)
	c.BulkLoadTable = strings.TrimSpace(c.BulkLoadTable)
	c.BulkLoadSourceIndex = strings.TrimSpace(c.BulkLoadSourceIndex)
}
