package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - etl-consumer",
			input:    "etl-consumer",
			expected: map[ServiceMode]bool{ServiceModeETLConsumer: true},
		},
		{
			name:  "all services with spaces",
			input: " http , etl-consumer , bulk-loader ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:        true,
				ServiceModeETLConsumer: true,
				ServiceModeBulkLoader:  true,
			},
		},
		{
			name:     "duplicate services",
			input:    "bulk-loader,bulk-loader",
			expected: map[ServiceMode]bool{ServiceModeBulkLoader: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Sanitize()

	if cfg.ETL.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want 10", cfg.ETL.MaxRetries)
	}
	if cfg.ETL.BaseBackoff() != 10*time.Second || cfg.ETL.MaxBackoff() != 100*time.Second {
		t.Errorf("backoff = %s/%s, want 10s/100s", cfg.ETL.BaseBackoff(), cfg.ETL.MaxBackoff())
	}
	if cfg.ETL.JitterFactor != 0.25 {
		t.Errorf("JitterFactor = %v, want 0.25", cfg.ETL.JitterFactor)
	}
	if cfg.ETL.MaxMessages != 5 || cfg.ETL.Visibility() != 30*time.Second ||
		cfg.ETL.Delay() != 5*time.Second || cfg.ETL.WaitTime() != 20*time.Second {
		t.Errorf("unexpected queue defaults: %+v", cfg.ETL)
	}
	if cfg.Queue.MaxReceiveCount != 8 {
		t.Errorf("MaxReceiveCount = %d, want 8", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Storage.IncomingPrefix != "incoming/" || cfg.Storage.OutputPrefix != "output/" {
		t.Errorf("unexpected prefixes %q %q", cfg.Storage.IncomingPrefix, cfg.Storage.OutputPrefix)
	}
	if cfg.BulkLoad.DedupWindow != 5*time.Minute {
		t.Errorf("DedupWindow = %s, want 5m", cfg.BulkLoad.DedupWindow)
	}
	if cfg.LogStore.Backend != LogStoreDynamoDB {
		t.Errorf("LogStore = %q, want dynamodb", cfg.LogStore.Backend)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "etl-consumer,bulk-loader")
	t.Setenv("DATA_BUCKET", "data-bucket")
	t.Setenv("INCOMING_PREFIX", "/landing")
	t.Setenv("ETL_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/etl")
	t.Setenv("LOAD_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/load")
	t.Setenv("MAX_RETRIES", "4")
	t.Setenv("JITTER_FACTOR", "0.1")
	t.Setenv("MAX_MESSAGES", "25")
	t.Setenv("MSG_DELAY", "2000")
	t.Setenv("TRANSFORM_BACKEND", "Bedrock")
	t.Setenv("GRAPH_ENDPOINT", "https://graph.cluster:8182/")
	t.Setenv("GRAPH_LOADER_ROLE_ARN", "arn:aws:iam::123:role/loader")
	t.Setenv("GRAPH_LOAD_PARALLELISM", "high")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("DB_HOST", "db.internal")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Sanitize()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Storage.IncomingPrefix != "landing/" {
		t.Errorf("IncomingPrefix = %q, want landing/", cfg.Storage.IncomingPrefix)
	}
	if cfg.ETL.MaxRetries != 4 || cfg.ETL.JitterFactor != 0.1 {
		t.Errorf("unexpected retry settings: %+v", cfg.ETL)
	}
	if cfg.ETL.MaxMessages != 10 {
		t.Errorf("MaxMessages = %d, want clamp to 10", cfg.ETL.MaxMessages)
	}
	if cfg.ETL.MsgDelay != 900 {
		t.Errorf("MsgDelay = %d, want clamp to 900", cfg.ETL.MsgDelay)
	}
	if cfg.Transform.Backend != TransformBackendBedrock {
		t.Errorf("Backend = %q, want bedrock", cfg.Transform.Backend)
	}
	if cfg.Graph.Endpoint != "https://graph.cluster:8182" || cfg.Graph.Parallelism != "HIGH" {
		t.Errorf("unexpected graph config: %+v", cfg.Graph)
	}
	if cfg.Redis.Enabled {
		t.Errorf("expected redis to be disabled")
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q", cfg.Postgres.Host)
	}
	if !cfg.IsETLConsumerEnabled() || !cfg.IsBulkLoaderEnabled() || cfg.IsHTTPServerEnabled() {
		t.Errorf("unexpected enabled services for %q", cfg.Services)
	}
}

func TestAppConfig_ValidateReportsMissingSettings(t *testing.T) {
	cfg := AppConfig{Services: "etl-consumer,bulk-loader"}
	cfg.Sanitize()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"DATA_BUCKET",
		"ETL_QUEUE_URL",
		"SCHEMA_TRANSLATOR_STATE_MACHINE_ARN",
		"LOAD_QUEUE_URL",
		"GRAPH_ENDPOINT",
		"GRAPH_LOADER_ROLE_ARN",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestAppConfig_ValidateRejectsBadValues(t *testing.T) {
	cfg := AppConfig{Services: "http", Graph: GraphConfig{Endpoint: "https://g:8182"}}
	cfg.Sanitize()
	cfg.LogStore.Backend = "sqlite"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_STORE") {
		t.Errorf("expected LOG_STORE error, got %v", err)
	}

	cfg = AppConfig{Services: "nope"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid services error")
	}
}

func TestETLConfig_Sanitize(t *testing.T) {
	cfg := ETLConfig{
		MaxRetries:         -1,
		BaseBackoffSeconds: 0,
		MaxBackoffSeconds:  1,
		JitterFactor:       3,
		MaxMessages:        0,
		VisibilityTimeout:  0,
		WaitTimeSeconds:    60,
		SampleBytes:        10,
		Concurrency:        0,
		LogWriteAttempts:   0,
	}
	cfg.Sanitize()

	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.BaseBackoffSeconds != 10 || cfg.MaxBackoffSeconds != 10 {
		t.Errorf("backoff = %v/%v, want 10/10", cfg.BaseBackoffSeconds, cfg.MaxBackoffSeconds)
	}
	if cfg.JitterFactor != 0.99 {
		t.Errorf("JitterFactor = %v", cfg.JitterFactor)
	}
	if cfg.MaxMessages != 1 || cfg.VisibilityTimeout != 1 || cfg.WaitTimeSeconds != 20 {
		t.Errorf("unexpected queue clamps: %+v", cfg)
	}
	if cfg.SampleBytes != 1024 || cfg.Concurrency != 1 || cfg.LogWriteAttempts != 1 {
		t.Errorf("unexpected minimums: %+v", cfg)
	}

	cfg.InvocationTimeout = time.Second
	cfg.VisibilityTimeout = 30
	if err := cfg.Validate(); err == nil {
		t.Error("expected invocation timeout shorter than visibility to be rejected")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeETLConsumer, ServiceModeBulkLoader}

	if len(modes) != len(expected) {
		t.Fatalf("expected %d service modes, got %d", len(expected), len(modes))
	}
	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "etl-pipeline" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "etl-pipeline" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
