package config

import (
	"fmt"
	"strings"
	"time"
)

// LogStoreBackend selects where the ETL log and bulk-load log live.
type LogStoreBackend string

const (
	// LogStoreDynamoDB stores both logs in DynamoDB tables.
	LogStoreDynamoDB LogStoreBackend = "dynamodb"
	// LogStorePostgres stores both logs in PostgreSQL (local development).
	LogStorePostgres LogStoreBackend = "postgres"
)

// LogStoreConfig selects the log store backend.
type LogStoreConfig struct {
	Backend LogStoreBackend `env:"LOG_STORE" envDefault:"dynamodb"`
}

// Sanitize normalizes the backend name.
func (c *LogStoreConfig) Sanitize() {
	c.Backend = LogStoreBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = LogStoreDynamoDB
	}
}

// Validate rejects unknown backends.
func (c *LogStoreConfig) Validate() error {
	switch c.Backend {
	case LogStoreDynamoDB, LogStorePostgres:
		return nil
	default:
		return fmt.Errorf("invalid LOG_STORE %q (valid options: dynamodb, postgres)", c.Backend)
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"etl"`
	Password string `env:"PASSWORD" envDefault:"etl"`
	Name     string `env:"NAME"     envDefault:"etl"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// RedisConfig contains Redis configuration. Redis backs the bulk loader's
// short-lived de-duplication claims; when disabled the loader relies on the
// bulk-load log alone.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"true"`
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	// UseCluster targets a cluster-mode replication group; ClusterNodes
	// overrides the URI's address as the seed list.
	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`
}
