// Package etlrunner runs the throttle queue consumer on a fixed interval.
package etlrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	obserrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/metrics"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service"
)

// BatchConsumer processes one bounded batch of throttle queue messages.
type BatchConsumer interface {
	RunOnce(ctx context.Context) (service.BatchResult, error)
}

// Runner provides a simple adapter to run the consumer loop.
// Each tick processes at most one batch, which is what paces calls to the transform service.
type Runner struct {
	consumer    BatchConsumer
	interval    time.Duration
	tickTimeout time.Duration
	logger      *slog.Logger
	metrics     statsd.Sink
	now         func() time.Time
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Consumer BatchConsumer
	Interval time.Duration
	// TickTimeout bounds one batch; zero means the interval.
	TickTimeout time.Duration
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Now         func() time.Time
}

// NewRunner creates a new consumer runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}
	return &Runner{
		consumer:    opts.Consumer,
		interval:    opts.Interval,
		tickTimeout: opts.TickTimeout,
		logger:      opts.Logger.With("component", "etl_runner"),
		metrics:     opts.Metrics,
		now:         opts.Now,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Consumer == nil {
		return errors.New("consumer is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return nil
}

// Run processes one batch immediately and then one per interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting etl runner", "interval", r.interval, "tick_timeout", r.tickTimeout)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "etl runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one bounded batch. Errors are logged and the loop keeps running.
func (r *Runner) Tick(ctx context.Context) service.BatchResult {
	tickCtx, cancel := context.WithTimeout(ctx, r.tickTimeout)
	defer cancel()

	start := r.now()
	res, err := r.consumer.RunOnce(tickCtx)
	elapsed := r.now().Sub(start)

	r.emitTickMetrics(res, elapsed, err)

	if err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "etl tick failed", "error", err)
	}
	return res
}

func (r *Runner) emitTickMetrics(res service.BatchResult, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if res.Received == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("etl.tick", 1, tags)

	if elapsed > 0 {
		r.metrics.Timing("etl.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("etl.last_success_epoch", float64(r.now().Unix()), nil)
	}
}
