package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
)

func testAWSClients() *AWSClients {
	awsCfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	}
	return NewAWSClients(awsCfg, config.AWSConfig{Region: "us-east-1", EndpointURL: "http://localhost:4566"})
}

func sanitizedConfig(services string) *config.AppConfig {
	cfg := &config.AppConfig{
		Services: services,
		Storage:  config.StorageConfig{Bucket: "data"},
		Queue: config.QueueConfig{
			ETLQueueURL:  "http://localhost:4566/000000000000/etl",
			ETLDLQURL:    "http://localhost:4566/000000000000/etl-dlq",
			LoadQueueURL: "http://localhost:4566/000000000000/load",
		},
		Transform: config.TransformConfig{StateMachineARN: "arn:aws:states:us-east-1:000000000000:stateMachine:translator"},
		Graph:     config.GraphConfig{Endpoint: "https://graph.local:8182", LoaderRoleARN: "arn:aws:iam::000000000000:role/loader"},
		Tables:    config.TablesConfig{ETLLogTable: "etl-log", BulkLoadTable: "bulk-load-log"},
	}
	cfg.Sanitize()
	return cfg
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewServices_WiresEverything(t *testing.T) {
	cfg := sanitizedConfig("http,etl-consumer,bulk-loader")
	require.NoError(t, cfg.Validate())

	sc, err := NewServices(context.Background(), &ServiceDeps{
		Config: cfg,
		Infra:  Infrastructure{AWS: testAWSClients()},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.NotNil(t, sc.Intake)
	assert.NotNil(t, sc.Processor)
	assert.NotNil(t, sc.Consumer)
	assert.NotNil(t, sc.BulkLoader)
	assert.NotNil(t, sc.LoadStatus)
	assert.NotNil(t, sc.ETLLog)
	assert.NotNil(t, sc.LoadQueue)
	assert.NotNil(t, sc.Observability.FailureNotifier)
	assert.Nil(t, sc.Observability.MetricsClient)
	assert.Empty(t, sc.Health)
}

func TestNewServices_OmitsUnconfiguredComponents(t *testing.T) {
	cfg := sanitizedConfig("http")
	cfg.Queue = config.QueueConfig{}
	cfg.Graph.Endpoint = ""

	sc, err := NewServices(context.Background(), &ServiceDeps{
		Config: cfg,
		Infra:  Infrastructure{AWS: testAWSClients()},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, sc.Intake)
	assert.Nil(t, sc.Consumer)
	assert.Nil(t, sc.BulkLoader)
	assert.Nil(t, sc.LoadStatus)
	assert.NotNil(t, sc.ETLLog)
}

func TestNewServices_PostgresRequiresDB(t *testing.T) {
	cfg := sanitizedConfig("http")
	cfg.LogStore.Backend = config.LogStorePostgres

	_, err := NewServices(context.Background(), &ServiceDeps{
		Config: cfg,
		Infra:  Infrastructure{AWS: testAWSClients()},
		Logger: discardLogger(),
	})
	require.Error(t, err)
}

func TestBuildObservability_UnresolvableSecretDisablesSinks(t *testing.T) {
	cfg := config.ObservabilityConfig{}
	cfg.Notifications.Enabled = true
	cfg.Notifications.Slack.Enabled = true
	cfg.Notifications.Slack.WebhookURL = "secret:etl/slack-webhook"
	cfg.Sanitize()

	obs := buildObservability(context.Background(), discardLogger(), cfg, nil)
	require.NotNil(t, obs.FailureNotifier)
	assert.False(t, obs.FailureNotifier.Enabled())
}

func TestBuildHTTPHandler_OnlyConfiguredRoutes(t *testing.T) {
	h := BuildHTTPHandler(&HTTPServerConfig{
		Config: config.HTTPConfig{},
		Logger: discardLogger(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loads/load-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
