package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/neptune"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/s3store"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/secretstore"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/sqsqueue"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/adapters/transform"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/data"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/etl"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify/pagerduty"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify/slack"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service/failurenotifier"
)

// ServiceContainer holds all application services. Components whose
// configuration is absent are left nil.
type ServiceContainer struct {
	Processor  *service.ETLProcessor
	Consumer   *service.ThrottleConsumer
	Intake     *service.ETLIntake
	BulkLoader *service.BulkLoader
	LoadStatus *service.LoadStatusService
	ETLLog     *service.ETLLogService
	// LoadQueue carries output-object notifications to the bulk loader.
	LoadQueue     core.ThrottleQueue
	Health        map[string]func(context.Context) error
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink
	MetricsClient   *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Close flushes and releases the metrics client.
func (o ObservabilityContainer) Close() error {
	if o.MetricsClient == nil {
		return nil
	}
	return o.MetricsClient.Close()
}

// Infrastructure holds connected clients. DB and Redis are nil when unused.
type Infrastructure struct {
	AWS   *AWSClients
	DB    *sql.DB
	Redis redis.UniversalClient
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Infra  Infrastructure
	Logger *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	ETLLog   core.ETLLogRepository
	BulkLoad core.BulkLoadRepository
	Cache    core.CacheRepository
}

// buildRepositories selects the log store backend; no business rules here.
func buildRepositories(cfg *config.AppConfig, infra Infrastructure) (*serviceRepositories, error) {
	repos := &serviceRepositories{}
	switch cfg.LogStore.Backend {
	case config.LogStorePostgres:
		if infra.DB == nil {
			return nil, errors.New("postgres log store selected but no database connection")
		}
		repos.ETLLog = data.NewPGETLLogRepo(infra.DB)
		repos.BulkLoad = data.NewPGBulkLoadRepo(infra.DB)
	default:
		if infra.AWS == nil {
			return nil, errors.New("dynamodb log store selected but no aws clients")
		}
		repos.ETLLog = data.NewDynamoETLLogRepo(infra.AWS.DynamoDB, cfg.Tables.ETLLogTable)
		repos.BulkLoad = data.NewDynamoBulkLoadRepo(data.DynamoBulkLoadRepoOptions{
			Client:      infra.AWS.DynamoDB,
			Table:       cfg.Tables.BulkLoadTable,
			SourceIndex: cfg.Tables.BulkLoadSourceIndex,
		})
	}
	if infra.Redis != nil {
		repos.Cache = data.NewRedisCacheRepoWithPrefix(infra.Redis, "etl:")
	}
	return repos, nil
}

// buildObservability configures metrics and notification adapters. Notification
// credentials given as secret references are resolved through secrets.
func buildObservability(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.ObservabilityConfig,
	secrets core.SecretStore,
) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsConfig: cfg.Metrics, NotifierConfig: cfg.Notifications}
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,

			FlushInterval: cfg.Metrics.FlushInterval,
		})
		if err != nil {
			obsLogger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		} else {
			out.MetricsClient = client
			out.MetricsSink = client
		}
	}

	notifications := cfg.Notifications
	if core.HasSecretRef(notifications.Slack.WebhookURL, notifications.PagerDuty.RoutingKey) {
		if err := core.ResolveSecretRefs(ctx, secrets,
			&notifications.Slack.WebhookURL,
			&notifications.PagerDuty.RoutingKey,
		); err != nil {
			obsLogger.ErrorContext(ctx, "failed to resolve notification secrets", "error", err)
			notifications.Slack.Enabled = false
			notifications.PagerDuty.Enabled = false
		}
	}
	out.FailureNotifier = buildFailureNotifier(obsLogger, notifications)
	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger.With("component", "failure_notifier")
	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			ConsoleURLPrefix: cfg.Slack.ConsoleURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger,
		Sinks:  sinks,
	})
}

//nolint:ireturn // the backend is chosen at runtime.
func buildTransformer(cfg config.TransformConfig, clients *AWSClients, logger *slog.Logger) (core.SchemaTransformer, error) {
	switch cfg.Backend {
	case config.TransformBackendBedrock:
		return transform.NewBedrockTransformer(transform.BedrockOptions{
			Client:      clients.Bedrock,
			ModelID:     cfg.BedrockModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Logger:      logger,
		})
	default:
		return transform.NewStepFunctionsTransformer(transform.StepFunctionsOptions{
			Client:          clients.SFN,
			StateMachineARN: cfg.StateMachineARN,
			Logger:          logger,
		})
	}
}

func buildGraphLoader(cfg *config.AppConfig, clients *AWSClients, logger *slog.Logger) (*neptune.Loader, error) {
	opts := neptune.Options{
		Endpoint: cfg.Graph.Endpoint,
		Timeout:  cfg.Graph.RequestTimeout,
		IAMAuth:  cfg.Graph.IAMAuth,
		Region:   cfg.AWS.Region,
		Logger:   logger,
	}
	if clients != nil {
		opts.Credentials = clients.Config.Credentials
	}
	return neptune.New(opts)
}

// NewServices wires the pipeline services for the given configuration.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clients := deps.Infra.AWS

	repos, err := buildRepositories(cfg, deps.Infra)
	if err != nil {
		return ServiceContainer{}, err
	}

	var secrets core.SecretStore
	if clients != nil {
		secrets = secretstore.New(clients.SecretsManager)
	}
	obs := buildObservability(ctx, logger, cfg.Observability, secrets)

	sc := ServiceContainer{Observability: obs, Health: healthChecks(deps.Infra)}

	sc.ETLLog, err = service.NewETLLogService(service.ETLLogServiceOptions{Repo: repos.ETLLog, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	if err := wireETL(&sc, cfg, clients, repos, logger); err != nil {
		return ServiceContainer{}, err
	}
	if err := wireBulkLoad(&sc, cfg, clients, repos, logger); err != nil {
		return ServiceContainer{}, err
	}
	return sc, nil
}

// wireETL builds the intake, processor and consumer when the throttle queue is configured.
func wireETL(sc *ServiceContainer, cfg *config.AppConfig, clients *AWSClients, repos *serviceRepositories, logger *slog.Logger) error {
	if clients == nil || cfg.Queue.ETLQueueURL == "" {
		return nil
	}
	queue, err := sqsqueue.New(clients.SQS, cfg.Queue.ETLQueueURL)
	if err != nil {
		return fmt.Errorf("throttle queue: %w", err)
	}
	var dlq core.ThrottleQueue
	if cfg.Queue.ETLDLQURL != "" {
		q, err := sqsqueue.New(clients.SQS, cfg.Queue.ETLDLQURL)
		if err != nil {
			return fmt.Errorf("dead-letter queue: %w", err)
		}
		dlq = q
	}
	sc.Intake, err = service.NewETLIntake(service.ETLIntakeOptions{Queue: queue, DLQ: dlq, Logger: logger})
	if err != nil {
		return err
	}

	if cfg.Storage.Bucket == "" {
		return nil
	}
	transformer, err := buildTransformer(cfg.Transform, clients, logger)
	if err != nil {
		return fmt.Errorf("schema transformer: %w", err)
	}
	backoff, err := etl.NewBackoffPolicy(etl.BackoffOptions{
		Base:   cfg.ETL.BaseBackoff(),
		Max:    cfg.ETL.MaxBackoff(),
		Jitter: cfg.ETL.JitterFactor,
		Floor:  cfg.ETL.Delay(),
	})
	if err != nil {
		return fmt.Errorf("backoff policy: %w", err)
	}
	sc.Processor, err = service.NewETLProcessor(service.ETLProcessorOptions{
		Store:       s3store.New(clients.S3),
		Transformer: transformer,
		Queue:       queue,
		Log:         repos.ETLLog,
		Backoff:     backoff,
		Config: service.ETLProcessorConfig{
			IncomingPrefix:   cfg.Storage.IncomingPrefix,
			OutputPrefix:     cfg.Storage.OutputPrefix,
			SchemaKey:        cfg.Storage.SchemaKey,
			SampleBytes:      cfg.ETL.SampleBytes,
			MaxRetries:       cfg.ETL.MaxRetries,
			LogWriteAttempts: cfg.ETL.LogWriteAttempts,
			RecordPending:    cfg.ETL.RecordPending,
		},
		Notifier: sc.Observability.FailureNotifier,
		Metrics:  sc.Observability.MetricsSink,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	sc.Consumer, err = service.NewThrottleConsumer(service.ThrottleConsumerOptions{
		Queue:     queue,
		Processor: sc.Processor,
		Config: service.ThrottleConsumerConfig{
			MaxMessages:        cfg.ETL.MaxMessages,
			WaitTime:           cfg.ETL.WaitTime(),
			VisibilityTimeout:  cfg.ETL.Visibility(),
			Concurrency:        cfg.ETL.Concurrency,
			DeadLetterFailures: cfg.ETL.DeadLetterFailures,
		},
		Metrics: sc.Observability.MetricsSink,
		Logger:  logger,
	})
	return err
}

// wireBulkLoad builds the loader and status services when the graph endpoint is configured.
func wireBulkLoad(sc *ServiceContainer, cfg *config.AppConfig, clients *AWSClients, repos *serviceRepositories, logger *slog.Logger) error {
	if cfg.Graph.Endpoint == "" {
		return nil
	}
	graph, err := buildGraphLoader(cfg, clients, logger)
	if err != nil {
		return fmt.Errorf("graph loader: %w", err)
	}
	sc.LoadStatus, err = service.NewLoadStatusService(service.LoadStatusServiceOptions{
		Loader:  graph,
		Repo:    repos.BulkLoad,
		Metrics: sc.Observability.MetricsSink,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	sc.BulkLoader, err = service.NewBulkLoader(service.BulkLoaderOptions{
		Loader: graph,
		Repo:   repos.BulkLoad,
		Cache:  repos.Cache,
		Config: service.BulkLoaderConfig{
			OutputPrefix:            cfg.Storage.OutputPrefix,
			Format:                  cfg.Graph.Format,
			IAMRoleARN:              cfg.Graph.LoaderRoleARN,
			Region:                  cfg.AWS.Region,
			Parallelism:             cfg.Graph.Parallelism,
			FailOnError:             cfg.Graph.FailOnError,
			UpdateSingleCardinality: cfg.Graph.UpdateSingleCardinality,
			DedupWindow:             cfg.BulkLoad.DedupWindow,
		},
		Notifier: sc.Observability.FailureNotifier,
		Metrics:  sc.Observability.MetricsSink,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if clients != nil && cfg.Queue.LoadQueueURL != "" {
		sc.LoadQueue, err = sqsqueue.New(clients.SQS, cfg.Queue.LoadQueueURL)
		if err != nil {
			return fmt.Errorf("load queue: %w", err)
		}
	}
	return nil
}

func healthChecks(infra Infrastructure) map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if infra.DB != nil {
		checks["postgres"] = infra.DB.PingContext
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}
