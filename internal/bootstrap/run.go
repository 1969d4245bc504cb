package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/etlrunner"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/loadrunner"
)

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// ServiceOrchestrationConfig contains what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes a startable component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newHTTPService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http server",
		start: func(ctx context.Context) error {
			return ServeHTTP(ctx, &HTTPServerConfig{
				Config:   cfg.Config.HTTP,
				Services: cfg.Services,
				Logger:   logger,
			})
		},
	}
}

func newETLConsumerService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeETLConsumer,
		name: "etl consumer",
		start: func(ctx context.Context) error {
			if cfg.Services.Consumer == nil {
				return errors.New("etl consumer is not configured")
			}
			runner, err := etlrunner.NewRunner(etlrunner.RunnerOptions{
				Consumer:    cfg.Services.Consumer,
				Interval:    cfg.Config.ETL.Interval,
				TickTimeout: cfg.Config.ETL.InvocationTimeout,
				Logger:      logger,
				Metrics:     cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("create etl runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newBulkLoaderService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeBulkLoader,
		name: "bulk loader",
		start: func(ctx context.Context) error {
			if cfg.Services.BulkLoader == nil || cfg.Services.LoadQueue == nil {
				return errors.New("bulk loader is not configured")
			}
			bl := cfg.Config.BulkLoad
			runner, err := loadrunner.NewRunner(loadrunner.RunnerOptions{
				Queue:             cfg.Services.LoadQueue,
				Handler:           cfg.Services.BulkLoader,
				Logger:            logger,
				Concurrency:       bl.Concurrency,
				MaxMessages:       bl.MaxMessages,
				WaitTime:          time.Duration(bl.WaitTimeSeconds) * time.Second,
				VisibilityTimeout: time.Duration(bl.VisibilityTimeout) * time.Second,
				Metrics:           cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return fmt.Errorf("create load runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		newHTTPService(cfg, logger),
		newETLConsumerService(cfg, logger),
		newBulkLoaderService(cfg, logger),
	}
}

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal arrives or one of them fails; either stops the rest.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	for _, svc := range buildBackgroundServices(cfg, logger) {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.Info(svc.name + " stopped")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services...")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for services to stop")
		return errors.New("shutdown timed out")
	}
}
