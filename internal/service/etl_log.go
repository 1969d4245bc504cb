package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// ETLLogServiceOptions groups dependencies for ETLLogService.
type ETLLogServiceOptions struct {
	Repo   core.ETLLogRepository // Required
	Logger *slog.Logger          // Optional
}

// ETLLogService reads the ETL audit trail.
type ETLLogService struct {
	repo   core.ETLLogRepository
	logger *slog.Logger
}

// NewETLLogService validates opts and constructs the service.
func NewETLLogService(opts ETLLogServiceOptions) (*ETLLogService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ETLLogRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ETLLogService{repo: opts.Repo, logger: logger.With("component", "etl_log")}, nil
}

// History returns the attempts recorded for an id, newest first.
func (s *ETLLogService) History(ctx context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error) {
	q.Normalize()
	if q.ID == "" {
		return nil, apperrors.ValidationField("id", "id is required")
	}
	recs, err := s.repo.History(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("etl history: %w", err)
	}
	return recs, nil
}

// Latest returns the authoritative record for an id.
func (s *ETLLogService) Latest(ctx context.Context, id string) (*model.ETLLogRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ValidationField("id", "id is required")
	}
	rec, err := s.repo.Latest(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrETLLogNotFound) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "no etl log for "+id)
		}
		return nil, fmt.Errorf("latest etl record: %w", err)
	}
	return rec, nil
}

// ETLIntakeOptions groups dependencies for ETLIntake.
type ETLIntakeOptions struct {
	Queue  core.ThrottleQueue // Required: the throttle queue
	DLQ    core.ThrottleQueue // Optional: required for RedriveDLQ
	Logger *slog.Logger       // Optional
	Now    func() time.Time   // Optional
}

// ETLIntake puts files on the throttle queue outside the object-store notification path.
type ETLIntake struct {
	queue  core.ThrottleQueue
	dlq    core.ThrottleQueue
	logger *slog.Logger
	now    func() time.Time
}

// NewETLIntake validates opts and constructs the intake.
func NewETLIntake(opts ETLIntakeOptions) (*ETLIntake, error) {
	if opts.Queue == nil {
		return nil, errors.New("ThrottleQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ETLIntake{queue: opts.Queue, dlq: opts.DLQ, logger: logger.With("component", "etl_intake"), now: now}, nil
}

// Enqueue sends a fresh envelope for bucket/key.
func (i *ETLIntake) Enqueue(ctx context.Context, bucket, key string, delay time.Duration) (model.FileEnvelope, error) {
	now := i.now().UTC()
	env := model.FileEnvelope{
		Bucket:      strings.TrimSpace(bucket),
		Key:         strings.TrimLeft(strings.TrimSpace(key), "/"),
		EventName:   "ObjectCreated:Manual",
		EventTime:   now.Format(time.RFC3339Nano),
		FirstSeenAt: now,
	}
	if err := i.Submit(ctx, env, delay); err != nil {
		return model.FileEnvelope{}, err
	}
	return env, nil
}

// Submit sends env as-is, keeping the event time of the notification it came from.
func (i *ETLIntake) Submit(ctx context.Context, env model.FileEnvelope, delay time.Duration) error {
	if err := env.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid envelope")
	}
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := i.queue.Send(ctx, core.SendParams{Body: body, Delay: delay}); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.Key, err)
	}
	i.logger.InfoContext(ctx, "file enqueued", "bucket", env.Bucket, "key", env.Key, "attempt", env.Attempt)
	return nil
}

// RedriveResult summarizes a RedriveDLQ call.
type RedriveResult struct {
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
}

// RedriveDLQ moves up to maxMessages dead-lettered messages back to the throttle
// queue as fresh attempts. Unparseable messages stay in the dead-letter queue.
func (i *ETLIntake) RedriveDLQ(ctx context.Context, maxMessages int) (RedriveResult, error) {
	var res RedriveResult
	if i.dlq == nil {
		return res, errors.New("dead-letter queue not configured")
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	for res.Moved+res.Skipped < maxMessages {
		msgs, err := i.dlq.Receive(ctx, core.ReceiveParams{
			MaxMessages:       min(10, maxMessages-res.Moved-res.Skipped),
			VisibilityTimeout: time.Minute,
		})
		if err != nil {
			return res, fmt.Errorf("receive dead letters: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			if err := i.redriveOne(ctx, msg); err != nil {
				i.logger.WarnContext(ctx, "dead letter not redriven", "message_id", msg.ID, "error", err)
				res.Skipped++
				continue
			}
			res.Moved++
		}
	}
	i.logger.InfoContext(ctx, "dead-letter redrive finished", "moved", res.Moved, "skipped", res.Skipped)
	return res, nil
}

func (i *ETLIntake) redriveOne(ctx context.Context, msg model.QueueMessage) error {
	now := i.now().UTC()
	envs, err := model.ParseObjectEvents(msg.Body, now)
	if err != nil {
		return err
	}
	for _, env := range envs {
		// A new event time keeps the redriven attempt from matching the recorded failure.
		env.Attempt = 0
		env.MalformedRetries = 0
		env.LastError = ""
		env.EventTime = now.Format(time.RFC3339Nano)
		body, err := env.Marshal()
		if err != nil {
			return err
		}
		if err := i.queue.Send(ctx, core.SendParams{Body: body}); err != nil {
			return err
		}
	}
	return i.dlq.Delete(ctx, msg.ReceiptHandle)
}
