package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/metrics"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
)

// BatchResult summarizes one RunOnce call.
type BatchResult struct {
	Received  int `json:"received"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Unacked   int `json:"unacked"`
	Skipped   int `json:"skipped"`
}

// ThrottleConsumerConfig holds the consumer's queue settings.
type ThrottleConsumerConfig struct {
	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	Concurrency       int
	// DeadLetterFailures leaves terminally failed messages unacknowledged and
	// immediately visible so the queue's redrive policy dead-letters them.
	DeadLetterFailures bool
}

// ThrottleConsumerOptions groups dependencies for ThrottleConsumer.
type ThrottleConsumerOptions struct {
	Queue     core.ThrottleQueue // Required
	Processor *ETLProcessor      // Required
	Config    ThrottleConsumerConfig
	Metrics   statsd.Sink      // Optional
	Logger    *slog.Logger     // Optional
	Now       func() time.Time // Optional
}

// ThrottleConsumer drains the throttle queue in bounded batches.
type ThrottleConsumer struct {
	queue     core.ThrottleQueue
	processor *ETLProcessor
	cfg       ThrottleConsumerConfig
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewThrottleConsumer validates opts and constructs the consumer.
func NewThrottleConsumer(opts ThrottleConsumerOptions) (*ThrottleConsumer, error) {
	if opts.Queue == nil {
		return nil, errors.New("ThrottleQueue is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("ETLProcessor is required")
	}
	cfg := opts.Config
	if cfg.MaxMessages < 1 {
		cfg.MaxMessages = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ThrottleConsumer{
		queue:     opts.Queue,
		processor: opts.Processor,
		cfg:       cfg,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "throttle_consumer"),
		now:       now,
	}, nil
}

// RunOnce receives one batch and processes every message independently.
// Only a failed receive is returned as an error.
func (c *ThrottleConsumer) RunOnce(ctx context.Context) (BatchResult, error) {
	start := c.now()
	msgs, err := c.queue.Receive(ctx, core.ReceiveParams{
		MaxMessages:       c.cfg.MaxMessages,
		WaitTime:          c.cfg.WaitTime,
		VisibilityTimeout: c.cfg.VisibilityTimeout,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("receive batch: %w", err)
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Received: len(msgs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			outcome := c.handleMessage(gctx, msg)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSucceeded:
				result.Succeeded++
			case OutcomeRetried:
				result.Retried++
			case OutcomeFailed:
				result.Failed++
			case OutcomeUnacked:
				result.Unacked++
			default:
				result.Skipped++
			}
			// One message never fails the batch.
			return nil
		})
	}
	_ = g.Wait()

	metrics.EmitBatch(c.metrics, metrics.BatchMetric{
		Received:  result.Received,
		Succeeded: result.Succeeded,
		Retried:   result.Retried,
		Failed:    result.Failed,
		Unacked:   result.Unacked,
		Duration:  c.now().Sub(start),
	})
	if result.Received > 0 {
		c.logger.InfoContext(ctx, "batch processed",
			"received", result.Received,
			"succeeded", result.Succeeded,
			"retried", result.Retried,
			"failed", result.Failed,
			"unacked", result.Unacked,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// handleMessage processes every envelope in msg and acknowledges it when all are durable.
func (c *ThrottleConsumer) handleMessage(ctx context.Context, msg model.QueueMessage) Outcome {
	logger := c.logger.With("message_id", msg.ID, "receive_count", msg.ReceiveCount)

	envs, err := model.ParseObjectEvents(msg.Body, c.now())
	if err != nil {
		// Left in flight; the redrive policy moves it to the dead-letter queue.
		logger.ErrorContext(ctx, "unparseable queue message", "error", err)
		return OutcomeUnacked
	}

	outcome := OutcomeSkipped
	for _, env := range envs {
		res, perr := c.processor.Process(ctx, env)
		if perr != nil {
			logger.ErrorContext(ctx, "message left for redelivery", "key", env.Key, "error", perr)
		}
		outcome = worse(outcome, res.Outcome)
	}

	switch {
	case outcome == OutcomeUnacked:
		return outcome
	case outcome == OutcomeFailed && c.cfg.DeadLetterFailures:
		if err := c.queue.ChangeVisibility(ctx, msg.ReceiptHandle, 0); err != nil {
			logger.WarnContext(ctx, "release failed message", "error", err)
		}
		return outcome
	}

	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// A redelivery is recognized as a duplicate from the log.
		logger.WarnContext(ctx, "acknowledge message", "error", err)
	}
	return outcome
}

// worse orders outcomes so that a multi-record message reports its least durable result.
func worse(a, b Outcome) Outcome {
	rank := func(o Outcome) int {
		switch o {
		case OutcomeUnacked:
			return 4
		case OutcomeFailed:
			return 3
		case OutcomeRetried:
			return 2
		case OutcomeSucceeded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
