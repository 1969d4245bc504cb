// Package config defines the environment-driven configuration of the ingestion pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - aws.go: AWS region, bucket, queues and tables
//   - etl.go: throttle consumer, transform, graph and bulk-load tuning
//   - database.go: log store, database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, .env loading).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	AWS     AWSConfig
	Storage StorageConfig
	Queue   QueueConfig
	Tables  TablesConfig

	ETL       ETLConfig
	Transform TransformConfig
	Graph     GraphConfig
	BulkLoad  BulkLoadConfig

	LogStore LogStoreConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"http"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.AWS.Sanitize()
	c.Storage.Sanitize()
	c.Queue.Sanitize()
	c.Tables.Sanitize()
	c.ETL.Sanitize()
	c.Transform.Sanitize()
	c.Graph.Sanitize()
	c.BulkLoad.Sanitize()
	c.LogStore.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks APP_ENV as a fallback for DEV.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// Validate reports every setting the enabled services require but lack.
func (c *AppConfig) Validate() error {
	services, err := c.GetEnabledServices()
	if err != nil {
		return err
	}

	var errs []error
	if err := c.LogStore.Validate(); err != nil {
		errs = append(errs, err)
	}
	if services[ServiceModeETLConsumer] {
		errs = append(errs, c.validateETLConsumer()...)
	}
	if services[ServiceModeBulkLoader] {
		errs = append(errs, c.validateBulkLoader()...)
	}
	if services[ServiceModeHTTP] && c.Graph.Endpoint == "" {
		errs = append(errs, errors.New("GRAPH_ENDPOINT is required for the status API"))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) validateETLConsumer() []error {
	var errs []error
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("DATA_BUCKET is required for etl-consumer"))
	}
	if c.Queue.ETLQueueURL == "" {
		errs = append(errs, errors.New("ETL_QUEUE_URL is required for etl-consumer"))
	}
	if err := c.Transform.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ETL.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (c *AppConfig) validateBulkLoader() []error {
	var errs []error
	if c.Queue.LoadQueueURL == "" {
		errs = append(errs, errors.New("LOAD_QUEUE_URL is required for bulk-loader"))
	}
	if c.Graph.Endpoint == "" {
		errs = append(errs, errors.New("GRAPH_ENDPOINT is required for bulk-loader"))
	}
	if c.Graph.LoaderRoleARN == "" {
		errs = append(errs, errors.New("GRAPH_LOADER_ROLE_ARN is required for bulk-loader"))
	}
	return errs
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled returns true if mode is listed in SERVICES.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.IsServiceEnabled(ServiceModeHTTP)
}

// IsETLConsumerEnabled returns true if the throttle queue consumer is enabled.
func (c *AppConfig) IsETLConsumerEnabled() bool {
	return c.IsServiceEnabled(ServiceModeETLConsumer)
}

// IsBulkLoaderEnabled returns true if the bulk loader is enabled.
func (c *AppConfig) IsBulkLoaderEnabled() bool {
	return c.IsServiceEnabled(ServiceModeBulkLoader)
}

// String renders a redacted summary for startup logs.
func (c *AppConfig) String() string {
	return fmt.Sprintf("services=%s log_store=%s bucket=%s transform=%s graph=%s",
		c.Services, c.LogStore.Backend, c.Storage.Bucket, c.Transform.Backend, c.Graph.Endpoint)
}
