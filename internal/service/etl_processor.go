package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/etl"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/metrics"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service/failurenotifier"
)

// maxMalformedRetries is how many unparseable transform answers are retried before failing.
const maxMalformedRetries = 1

// ErrLogWriteFailed wraps a log write that did not succeed after every attempt.
var ErrLogWriteFailed = errors.New("etl log write failed")

// Outcome is what happened to one envelope.
type Outcome int

const (
	// OutcomeSkipped means nothing was done: the key is out of scope or the event was already handled.
	OutcomeSkipped Outcome = iota
	// OutcomeSucceeded means output was written and a SUCCESS record stored.
	OutcomeSucceeded
	// OutcomeRetried means a retry envelope was enqueued.
	OutcomeRetried
	// OutcomeFailed means a FAILED record is stored and no retry follows.
	OutcomeFailed
	// OutcomeUnacked means the outcome could not be made durable; the message must be redelivered.
	OutcomeUnacked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetried:
		return "retried"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnacked:
		return "unacked"
	default:
		return "unknown"
	}
}

// ProcessResult is the outcome of ETLProcessor.Process.
type ProcessResult struct {
	Outcome Outcome
	Record  *model.ETLLogRecord
	// Duplicate is true when the event had already been handled by an earlier delivery.
	Duplicate bool
	Delay     time.Duration
}

// ETLProcessorConfig holds the processor's tunables.
type ETLProcessorConfig struct {
	IncomingPrefix   string
	OutputPrefix     string
	SchemaKey        string
	SampleBytes      int64
	MaxRetries       int
	LogWriteAttempts int
	RecordPending    bool
}

// ETLProcessorOptions groups dependencies for ETLProcessor.
type ETLProcessorOptions struct {
	Store       core.ObjectStore       // Required: source, schema and output objects
	Transformer core.SchemaTransformer // Required
	Queue       core.ThrottleQueue     // Required: retry envelopes are sent here
	Log         core.ETLLogRepository  // Required
	Backoff     *etl.BackoffPolicy     // Required
	Config      ETLProcessorConfig

	Notifier *failurenotifier.Service // Optional: terminal failure fan-out
	Metrics  statsd.Sink              // Optional
	Logger   *slog.Logger             // Optional
	Now      func() time.Time         // Optional: defaults to time.Now
}

// ETLProcessor turns one arrived CSV file into graph load files, retrying the
// schema transform with backoff through the throttle queue.
type ETLProcessor struct {
	store       core.ObjectStore
	transformer core.SchemaTransformer
	queue       core.ThrottleQueue
	log         core.ETLLogRepository
	backoff     *etl.BackoffPolicy
	cfg         ETLProcessorConfig
	notifier    *failurenotifier.Service
	metrics     statsd.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewETLProcessor validates opts and constructs the processor.
func NewETLProcessor(opts ETLProcessorOptions) (*ETLProcessor, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("ObjectStore is required")
	case opts.Transformer == nil:
		return nil, errors.New("SchemaTransformer is required")
	case opts.Queue == nil:
		return nil, errors.New("ThrottleQueue is required")
	case opts.Log == nil:
		return nil, errors.New("ETLLogRepository is required")
	case opts.Backoff == nil:
		return nil, errors.New("BackoffPolicy is required")
	}

	cfg := opts.Config
	if cfg.IncomingPrefix == "" {
		cfg.IncomingPrefix = "incoming/"
	}
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = "output/"
	}
	if cfg.SampleBytes <= 0 {
		cfg.SampleBytes = 64 << 10
	}
	if cfg.LogWriteAttempts < 1 {
		cfg.LogWriteAttempts = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ETLProcessor{
		store:       opts.Store,
		transformer: opts.Transformer,
		queue:       opts.Queue,
		log:         opts.Log,
		backoff:     opts.Backoff,
		cfg:         cfg,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "etl_processor"),
		now:         now,
	}, nil
}

// InScope reports whether key is a file the processor transforms.
func (p *ETLProcessor) InScope(key string) bool {
	return strings.HasPrefix(key, p.cfg.IncomingPrefix) && !strings.HasSuffix(key, "/")
}

// Process handles one envelope. A non-nil error always comes with OutcomeUnacked.
func (p *ETLProcessor) Process(ctx context.Context, env model.FileEnvelope) (ProcessResult, error) {
	start := p.now()
	res, kind, err := p.process(ctx, env)

	status := res.Outcome.String()
	if res.Record != nil && !res.Duplicate {
		status = string(res.Record.Status)
	}
	metrics.EmitETLTransition(p.metrics, metrics.ETLMetric{
		Status:        status,
		TransformKind: kind,
		Attempt:       env.Attempt,
		Duration:      p.now().Sub(start),
		Err:           err,
	})
	return res, err
}

func (p *ETLProcessor) process(ctx context.Context, env model.FileEnvelope) (ProcessResult, string, error) {
	if err := env.Validate(); err != nil {
		return ProcessResult{Outcome: OutcomeSkipped}, "", nil
	}
	if !p.InScope(env.Key) {
		p.logger.DebugContext(ctx, "key outside incoming prefix", "key", env.Key)
		return ProcessResult{Outcome: OutcomeSkipped}, "", nil
	}

	logger := p.logger.With("key", env.Key, "attempt", env.Attempt)

	if res, ok := p.checkDuplicate(ctx, logger, env); ok {
		return res, "", nil
	}

	src := core.ObjectRef{Bucket: env.Bucket, Key: env.Key}
	sample, err := p.store.GetObjectRange(ctx, core.GetRangeParams{Ref: src, Length: p.cfg.SampleBytes})
	if err != nil {
		res, rerr := p.handleReadError(ctx, logger, env, err)
		return res, "", rerr
	}
	if len(bytes.TrimSpace(sample.Data)) == 0 {
		res, rerr := p.fail(ctx, logger, env, etl.ErrEmptyCSV.Error())
		return res, "", rerr
	}

	schema, err := p.readSchema(ctx, env.Bucket)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return ProcessResult{Outcome: OutcomeUnacked}, "", cerr
		}
		res, rerr := p.retry(ctx, logger, env, fmt.Sprintf("read graph schema: %v", err), false)
		return res, "", rerr
	}

	result, err := p.transformer.Transform(ctx, model.TransformRequest{
		Records:     etl.SampleCSV(sample.Data, sample.Truncated),
		FileName:    path.Base(env.Key),
		GraphSchema: schema,
	})
	if err != nil {
		return ProcessResult{Outcome: OutcomeUnacked}, "", fmt.Errorf("transform %s: %w", env.Key, err)
	}
	kind := result.Kind.String()

	switch {
	case result.Kind == model.TransformSuccess:
		res, rerr := p.writeOutput(ctx, logger, env, result.Mapping)
		return res, kind, rerr
	case result.Kind == model.TransformMalformed:
		if env.MalformedRetries >= maxMalformedRetries {
			res, rerr := p.fail(ctx, logger, env, "malformed transform response: "+result.Detail)
			return res, kind, rerr
		}
		res, rerr := p.retry(ctx, logger, env, "malformed transform response: "+result.Detail, true)
		return res, kind, rerr
	case result.Kind.Retryable():
		res, rerr := p.retry(ctx, logger, env, kind+": "+result.Detail, false)
		return res, kind, rerr
	default:
		res, rerr := p.fail(ctx, logger, env, kind+": "+result.Detail)
		return res, kind, rerr
	}
}

// checkDuplicate recognizes a redelivery of an event whose outcome is already recorded.
func (p *ETLProcessor) checkDuplicate(ctx context.Context, logger *slog.Logger, env model.FileEnvelope) (ProcessResult, bool) {
	if env.EventTime == "" {
		return ProcessResult{}, false
	}
	latest, err := p.log.Latest(ctx, env.Key)
	if err != nil {
		if !errors.Is(err, model.ErrETLLogNotFound) {
			logger.WarnContext(ctx, "duplicate check skipped", "error", err)
		}
		return ProcessResult{}, false
	}
	if latest.EventTime != env.EventTime || latest.Attempt < env.Attempt {
		return ProcessResult{}, false
	}

	logger.InfoContext(ctx, "event already handled", "status", latest.Status, "recorded_at", latest.Timestamp)
	switch latest.Status {
	case model.ETLStatusFailed:
		return ProcessResult{Outcome: OutcomeFailed, Record: latest, Duplicate: true}, true
	case model.ETLStatusSuccess:
		return ProcessResult{Outcome: OutcomeSkipped, Record: latest, Duplicate: true}, true
	default:
		// A PENDING record at or past this attempt means a retry envelope already carries the event forward.
		return ProcessResult{Outcome: OutcomeRetried, Record: latest, Duplicate: true}, true
	}
}

func (p *ETLProcessor) handleReadError(
	ctx context.Context,
	logger *slog.Logger,
	env model.FileEnvelope,
	err error,
) (ProcessResult, error) {
	if errors.Is(err, model.ErrObjectNotFound) || errors.Is(err, model.ErrObjectAccessDenied) {
		return p.fail(ctx, logger, env, fmt.Sprintf("read source object: %v", err))
	}
	if cerr := ctx.Err(); cerr != nil {
		return ProcessResult{Outcome: OutcomeUnacked}, cerr
	}
	return p.retry(ctx, logger, env, fmt.Sprintf("read source object: %v", err), false)
}

// readSchema returns the standing graph schema, or "" when none has been published yet.
func (p *ETLProcessor) readSchema(ctx context.Context, bucket string) (string, error) {
	if p.cfg.SchemaKey == "" {
		return "", nil
	}
	body, err := p.store.GetObject(ctx, core.ObjectRef{Bucket: bucket, Key: p.cfg.SchemaKey})
	if errors.Is(err, model.ErrObjectNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (p *ETLProcessor) writeOutput(
	ctx context.Context,
	logger *slog.Logger,
	env model.FileEnvelope,
	mapping *model.SchemaMapping,
) (ProcessResult, error) {
	src := core.ObjectRef{Bucket: env.Bucket, Key: env.Key}
	body, err := p.store.GetObject(ctx, src)
	if err != nil {
		return p.handleReadError(ctx, logger, env, err)
	}

	files, err := etl.Rewrite(etl.RewriteParams{
		Source:       bytes.NewReader(body),
		Mapping:      mapping,
		SourceKey:    env.Key,
		Incoming:     p.cfg.IncomingPrefix,
		OutputPrefix: p.cfg.OutputPrefix,
	})
	if err != nil {
		// The mapping does not fit the file; handled like an unusable answer.
		detail := "malformed transform response: " + err.Error()
		if env.MalformedRetries >= maxMalformedRetries {
			return p.fail(ctx, logger, env, detail)
		}
		return p.retry(ctx, logger, env, detail, true)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		if err := p.store.PutObject(ctx, core.PutObjectParams{
			Ref:         core.ObjectRef{Bucket: env.Bucket, Key: f.Key},
			Body:        f.Body,
			ContentType: "text/csv",
		}); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return ProcessResult{Outcome: OutcomeUnacked}, cerr
			}
			return p.retry(ctx, logger, env, fmt.Sprintf("write output %s: %v", f.Key, err), false)
		}
		keys = append(keys, f.Key)
	}

	rec := p.newRecord(env, model.ETLStatusSuccess, "")
	rec.OutputKeys = keys
	rec.NodeLabel = mapping.Node.NodeLabel
	if err := p.appendRecord(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "success record not written", "error", err)
		return ProcessResult{Outcome: OutcomeUnacked}, err
	}
	logger.InfoContext(ctx, "file transformed", "node_label", rec.NodeLabel, "output_keys", keys)
	return ProcessResult{Outcome: OutcomeSucceeded, Record: rec}, nil
}

// retry re-enqueues the envelope with backoff, or fails it once retries are exhausted.
func (p *ETLProcessor) retry(
	ctx context.Context,
	logger *slog.Logger,
	env model.FileEnvelope,
	detail string,
	malformed bool,
) (ProcessResult, error) {
	decision := p.backoff.Decide(env.Attempt, p.cfg.MaxRetries)
	if !decision.Retry {
		return p.fail(ctx, logger, env, fmt.Sprintf("retries exhausted after attempt %d: %s", env.Attempt, detail))
	}

	next := env.NextAttempt(detail)
	if malformed {
		next.MalformedRetries++
	}
	body, err := next.Marshal()
	if err != nil {
		return ProcessResult{Outcome: OutcomeUnacked}, err
	}
	if err := p.queue.Send(ctx, core.SendParams{Body: body, Delay: decision.Delay}); err != nil {
		logger.ErrorContext(ctx, "retry envelope not enqueued", "error", err)
		return ProcessResult{Outcome: OutcomeUnacked}, fmt.Errorf("re-enqueue %s: %w", env.Key, err)
	}
	logger.InfoContext(ctx, "transform retry scheduled",
		"next_attempt", decision.NextAttempt,
		"delay", decision.Delay,
		"reason", detail,
	)

	res := ProcessResult{Outcome: OutcomeRetried, Delay: decision.Delay}
	if p.cfg.RecordPending {
		rec := p.newRecord(env, model.ETLStatusPending, detail)
		if err := p.appendRecord(ctx, rec); err != nil {
			// The retry is already enqueued; the interim record is informational.
			logger.WarnContext(ctx, "pending record not written", "error", err)
		} else {
			res.Record = rec
		}
	}
	return res, nil
}

// fail stores a terminal FAILED record and notifies.
func (p *ETLProcessor) fail(ctx context.Context, logger *slog.Logger, env model.FileEnvelope, detail string) (ProcessResult, error) {
	rec := p.newRecord(env, model.ETLStatusFailed, detail)
	if err := p.appendRecord(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failure record not written", "error", err, "reason", detail)
		return ProcessResult{Outcome: OutcomeUnacked}, err
	}
	logger.WarnContext(ctx, "file failed", "reason", detail)

	p.notifier.NotifyPipelineFailure(ctx, notify.PipelineFailurePayload{
		Stage:    notify.StageETL,
		Subject:  env.Key,
		FileName: path.Base(env.Key),
		Attempt:  env.Attempt,
		Error:    detail,
		Metadata: map[string]string{"bucket": env.Bucket, "event_time": env.EventTime},
	})
	return ProcessResult{Outcome: OutcomeFailed, Record: rec}, nil
}

func (p *ETLProcessor) newRecord(env model.FileEnvelope, status model.ETLStatus, detail string) *model.ETLLogRecord {
	rec := &model.ETLLogRecord{
		ID:        env.Key,
		Timestamp: model.FormatTimestamp(p.now()),
		Status:    status,
		FileName:  env.Key,
		Attempt:   env.Attempt,
		EventTime: env.EventTime,
	}
	if detail != "" {
		rec.Error = &detail
	}
	return rec
}

// appendRecord writes rec, retrying up to LogWriteAttempts times. A timestamp
// collision moves the record forward by a microsecond.
func (p *ETLProcessor) appendRecord(ctx context.Context, rec *model.ETLLogRecord) error {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.LogWriteAttempts; attempt++ {
		err := p.log.Append(ctx, rec)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, model.ErrDuplicateETLRecord) {
			if ts, perr := model.ParseTimestamp(rec.Timestamp); perr == nil {
				rec.Timestamp = model.FormatTimestamp(ts.Add(time.Microsecond))
			}
		}
		if ctx.Err() != nil {
			break
		}
		p.logger.WarnContext(ctx, "etl log write failed",
			"key", rec.ID,
			"status", rec.Status,
			"write_attempt", attempt,
			"error", err,
		)
	}
	return fmt.Errorf("%w: %w", ErrLogWriteFailed, lastErr)
}
