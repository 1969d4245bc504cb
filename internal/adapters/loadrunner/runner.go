// Package loadrunner consumes output-object notifications and submits graph bulk loads.
package loadrunner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	obserrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service"
)

// EventHandler handles one notification body naming output objects.
type EventHandler interface {
	HandleEvent(ctx context.Context, body string) ([]service.LoadResult, error)
}

// RunnerOptions configures the load runner adapter.
type RunnerOptions struct {
	Queue   core.ThrottleQueue // Required: the output notification queue
	Handler EventHandler       // Required
	Logger  *slog.Logger

	Concurrency       int           // number of worker goroutines; defaults to 1
	MaxMessages       int           // per receive; defaults to 10
	WaitTime          time.Duration // long-poll wait; defaults to 20s
	VisibilityTimeout time.Duration // in-flight window per message
	// ErrorBackoff is the pause after a failed receive; defaults to 1s.
	ErrorBackoff time.Duration

	Metrics statsd.Sink
}

// Runner pulls notifications and hands them to the bulk loader.
type Runner struct {
	queue        core.ThrottleQueue
	handler      EventHandler
	logger       *slog.Logger
	workers      int
	receive      core.ReceiveParams
	errorBackoff time.Duration
	metrics      statsd.Sink
}

// NewRunner validates opts and constructs the runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 10
	}
	wait := opts.WaitTime
	if wait <= 0 {
		wait = 20 * time.Second
	}
	backoff := opts.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Runner{
		queue:   opts.Queue,
		handler: opts.Handler,
		logger:  logger.With("component", "load_runner"),
		workers: workers,
		receive: core.ReceiveParams{
			MaxMessages:       maxMessages,
			WaitTime:          wait,
			VisibilityTimeout: opts.VisibilityTimeout,
		},
		errorBackoff: backoff,
		metrics:      opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes notifications until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting load runner", "workers", r.workers, "wait", r.receive.WaitTime)

	var wg sync.WaitGroup
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx)
		}()
	}
	wg.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := r.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.WarnContext(ctx, "receive notifications failed", "error", err)
			if !r.sleep(ctx, r.errorBackoff) {
				return
			}
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Poll receives one batch and handles every message in it. It returns the number of
// messages acknowledged; only a failed receive is returned as an error.
func (r *Runner) Poll(ctx context.Context) (int, error) {
	msgs, err := r.queue.Receive(ctx, r.receive)
	if err != nil {
		return 0, err
	}
	acked := 0
	for _, msg := range msgs {
		if r.processMessage(ctx, msg) {
			acked++
		}
	}
	return acked, nil
}

// processMessage acknowledges msg once every object it names is submitted,
// de-duplicated or recorded as rejected.
func (r *Runner) processMessage(ctx context.Context, msg model.QueueMessage) bool {
	logger := r.logger.With("message_id", msg.ID, "receive_count", msg.ReceiveCount)

	results, err := r.handler.HandleEvent(ctx, msg.Body)
	r.emit(results, err)
	if err != nil {
		// Left in flight; redelivered after the visibility timeout or dead-lettered.
		logger.ErrorContext(ctx, "notification not handled", "error", err)
		return false
	}
	if err := r.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		logger.WarnContext(ctx, "acknowledge notification", "error", err)
		return false
	}
	return true
}

func (r *Runner) emit(results []service.LoadResult, err error) {
	if r.metrics == nil {
		return
	}
	for _, res := range results {
		r.metrics.Count("bulkload.notification", 1, map[string]string{"outcome": res.Outcome.String()})
	}
	if err != nil {
		tags := map[string]string{"outcome": "error"}
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
		r.metrics.Count("bulkload.notification", 1, tags)
	}
}
