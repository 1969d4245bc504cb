package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
)

// ConnectInfrastructure connects the clients the configuration asks for. The
// returned close function releases them in reverse order.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (Infrastructure, func() error, error) {
	var (
		infra   Infrastructure
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return Infrastructure{}, nil, err
	}
	infra.AWS = NewAWSClients(awsCfg, cfg.AWS)

	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	if cfg.LogStore.Backend == config.LogStorePostgres {
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return Infrastructure{}, nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
		closers = append(closers, db.Close)

		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return Infrastructure{}, nil, errors.Join(err, closeAll())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if cfg.Redis.Enabled {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			// Claims degrade to the bulk-load log check.
			logger.WarnContext(ctx, "redis unavailable; bulk-load de-duplication uses the log only", "error", err)
		} else {
			infra.Redis = client
			closers = append(closers, client.Close)
		}
	}

	return infra, closeAll, nil
}
