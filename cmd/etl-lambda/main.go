// Command etl-lambda is the Lambda entrypoint for object notifications,
// scheduled throttle queue batches and direct status invocations.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/lambdahandler"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(cfg.IsDev)
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Lambda init failure must abort the runtime.
	}

	// Connections opened here are reused across warm invocations.
	infra, _, err := bootstrap.ConnectInfrastructure(ctx, &cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "connect infrastructure", "error", err)
		os.Exit(1) //nolint:forbidigo // Lambda init failure must abort the runtime.
	}
	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{Config: &cfg, Infra: infra, Logger: logger})
	if err != nil {
		logger.ErrorContext(ctx, "build services", "error", err)
		os.Exit(1) //nolint:forbidigo // Lambda init failure must abort the runtime.
	}

	opts := lambdahandler.Options{
		IncomingPrefix: cfg.Storage.IncomingPrefix,
		Logger:         logger,
	}
	// Nil pointers must stay nil interfaces so the handler can tell what is configured.
	if services.Intake != nil {
		opts.Intake = services.Intake
	}
	if services.Consumer != nil {
		opts.Consumer = services.Consumer
	}
	if services.BulkLoader != nil {
		opts.Loader = services.BulkLoader
	}
	if services.LoadStatus != nil {
		opts.Status = services.LoadStatus
	}

	handler := lambdahandler.New(opts)
	metrics := services.Observability.MetricsClient
	lambda.Start(func(ctx context.Context, payload json.RawMessage) (any, error) {
		defer metrics.Flush()
		return handler.Handle(ctx, payload)
	})
}
