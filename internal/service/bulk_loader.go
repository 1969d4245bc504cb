package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	obserrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/metrics"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/notify"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/service/failurenotifier"
)

const (
	// dedupKeyPrefix namespaces the bulk loader's claims in the cache.
	dedupKeyPrefix = "bulkload:dedup:"
	// pendingClaim marks a claim whose submission has not returned a load id yet.
	pendingClaim = "pending"
	// recordAttempts bounds the writes of a submitted job's record.
	recordAttempts = 3
)

// LoadOutcome is what happened to one output object event.
type LoadOutcome int

const (
	// LoadOutcomeIgnored means the key is not a loadable output file.
	LoadOutcomeIgnored LoadOutcome = iota
	// LoadOutcomeSubmitted means a job was submitted and recorded.
	LoadOutcomeSubmitted
	// LoadOutcomeDeduplicated means a recent job for the same key suppressed this one.
	LoadOutcomeDeduplicated
	// LoadOutcomeRejected means the engine refused the job; a failed record was written.
	LoadOutcomeRejected
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadOutcomeIgnored:
		return "ignored"
	case LoadOutcomeSubmitted:
		return "submitted"
	case LoadOutcomeDeduplicated:
		return "deduplicated"
	case LoadOutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of BulkLoader.HandleObject.
type LoadResult struct {
	Outcome LoadOutcome
	Key     string
	Job     *model.BulkLoadJob
}

// BulkLoaderConfig holds the load request settings.
type BulkLoaderConfig struct {
	OutputPrefix            string
	Format                  string
	IAMRoleARN              string
	Region                  string
	Parallelism             string
	FailOnError             bool
	UpdateSingleCardinality bool
	// DedupWindow suppresses repeat submissions for the same key; zero disables it.
	DedupWindow time.Duration
}

// BulkLoaderOptions groups dependencies for BulkLoader.
type BulkLoaderOptions struct {
	Loader core.GraphLoader        // Required
	Repo   core.BulkLoadRepository // Required
	Cache  core.CacheRepository    // Optional: atomic de-duplication claims
	Config BulkLoaderConfig

	Notifier *failurenotifier.Service // Optional
	Metrics  statsd.Sink              // Optional
	Logger   *slog.Logger             // Optional
	Now      func() time.Time         // Optional
	NewID    func() string            // Optional: synthetic ids for rejected submissions
}

// BulkLoader submits graph bulk-load jobs for transformed output files.
type BulkLoader struct {
	loader   core.GraphLoader
	repo     core.BulkLoadRepository
	cache    core.CacheRepository
	cfg      BulkLoaderConfig
	notifier *failurenotifier.Service
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewBulkLoader validates opts and constructs the loader.
func NewBulkLoader(opts BulkLoaderOptions) (*BulkLoader, error) {
	if opts.Loader == nil {
		return nil, errors.New("GraphLoader is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("BulkLoadRepository is required")
	}
	cfg := opts.Config
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = "output/"
	}
	if cfg.Format == "" {
		cfg.Format = "csv"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &BulkLoader{
		loader:   opts.Loader,
		repo:     opts.Repo,
		cache:    opts.Cache,
		cfg:      cfg,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "bulk_loader"),
		now:      now,
		newID:    newID,
	}, nil
}

// InScope reports whether key is an output file the loader submits.
func (b *BulkLoader) InScope(key string) bool {
	return strings.HasPrefix(key, b.cfg.OutputPrefix) && strings.EqualFold(path.Ext(key), ".csv")
}

// HandleEvent parses an object-store notification body and handles every object it names.
func (b *BulkLoader) HandleEvent(ctx context.Context, body string) ([]LoadResult, error) {
	envs, err := model.ParseObjectEvents(body, b.now())
	if err != nil {
		return nil, err
	}
	results := make([]LoadResult, 0, len(envs))
	var errs []error
	for _, env := range envs {
		res, herr := b.HandleObject(ctx, core.ObjectRef{Bucket: env.Bucket, Key: env.Key})
		if herr != nil {
			errs = append(errs, herr)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// HandleObject submits one output object unless a recent job for it exists.
// Engine rejections are recorded and reported through the result, not the error.
func (b *BulkLoader) HandleObject(ctx context.Context, ref core.ObjectRef) (LoadResult, error) {
	if !b.InScope(ref.Key) {
		return LoadResult{Outcome: LoadOutcomeIgnored, Key: ref.Key}, nil
	}
	logger := b.logger.With("key", ref.Key)
	start := b.now()

	claimed, err := b.claim(ctx, logger, ref.Key)
	if err != nil {
		return LoadResult{}, err
	}
	if !claimed {
		return b.claimHeld(ctx, logger, ref, start)
	}
	if recent := b.activeRecent(ctx, logger, ref.Key); recent != nil {
		return b.deduplicated(ctx, logger, ref.Key, "active job "+recent.LoadID)
	}

	source := "s3://" + ref.Bucket + "/" + ref.Key
	loadID, err := b.loader.StartLoad(ctx, model.LoadRequest{
		Source:                            source,
		Format:                            b.cfg.Format,
		IAMRoleARN:                        b.cfg.IAMRoleARN,
		Region:                            b.cfg.Region,
		FailOnError:                       b.cfg.FailOnError,
		Parallelism:                       b.cfg.Parallelism,
		QueueRequest:                      true,
		UpdateSingleCardinalityProperties: b.cfg.UpdateSingleCardinality,
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			b.release(ctx, logger, ref.Key)
			return LoadResult{}, cerr
		}
		return b.rejected(ctx, logger, ref.Key, source, err, start)
	}

	b.rememberLoadID(ctx, logger, ref.Key, loadID)
	return b.record(ctx, logger, b.submittedJob(ref, loadID), start)
}

func (b *BulkLoader) submittedJob(ref core.ObjectRef, loadID string) *model.BulkLoadJob {
	now := b.now().UTC()
	return &model.BulkLoadJob{
		LoadID:      loadID,
		SourceKey:   ref.Key,
		Source:      "s3://" + ref.Bucket + "/" + ref.Key,
		Status:      model.LoadStatusInProgress,
		Payload:     model.LoadPayload{Errors: []model.LoadError{}},
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// record writes the submitted job, retrying a bounded number of times.
// On failure the claim keeps the load id so a redelivery can write the record.
func (b *BulkLoader) record(ctx context.Context, logger *slog.Logger, job *model.BulkLoadJob, start time.Time) (LoadResult, error) {
	var lastErr error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if lastErr = b.repo.Put(ctx, job); lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		logger.WarnContext(ctx, "bulk load record write failed", "load_id", job.LoadID, "write_attempt", attempt, "error", lastErr)
	}
	if lastErr != nil {
		logger.ErrorContext(ctx, "bulk load submitted but not recorded", "load_id", job.LoadID, "error", lastErr)
		return LoadResult{}, fmt.Errorf("record bulk load %s: %w", job.LoadID, lastErr)
	}

	metrics.EmitBulkLoad(b.metrics, metrics.BulkLoadMetric{
		Transition: metrics.LoadSubmitted,
		Status:     string(job.Status),
		Duration:   b.now().Sub(start),
	})
	logger.InfoContext(ctx, "bulk load submitted", "load_id", job.LoadID)
	return LoadResult{Outcome: LoadOutcomeSubmitted, Key: job.SourceKey, Job: job}, nil
}

// claimHeld handles a delivery that lost the claim. A claim carrying the load id
// of a job with no record means an earlier delivery failed to write it.
func (b *BulkLoader) claimHeld(ctx context.Context, logger *slog.Logger, ref core.ObjectRef, start time.Time) (LoadResult, error) {
	value, err := b.cache.Get(ctx, dedupKeyPrefix+ref.Key)
	if err != nil {
		logger.WarnContext(ctx, "dedup claim unreadable", "error", err)
		return b.deduplicated(ctx, logger, ref.Key, "claim held")
	}
	loadID := string(value)
	if loadID == "" || loadID == pendingClaim {
		return b.deduplicated(ctx, logger, ref.Key, "claim held")
	}

	_, err = b.repo.Get(ctx, loadID)
	switch {
	case err == nil:
		return b.deduplicated(ctx, logger, ref.Key, "recorded job "+loadID)
	case errors.Is(err, model.ErrBulkLoadNotFound):
		logger.WarnContext(ctx, "recording previously submitted bulk load", "load_id", loadID)
		return b.record(ctx, logger, b.submittedJob(ref, loadID), start)
	default:
		return LoadResult{}, fmt.Errorf("look up bulk load %s: %w", loadID, err)
	}
}

// claim takes the short-lived cache claim for key. Without a cache (or with a
// failing one) the repository check alone de-duplicates.
func (b *BulkLoader) claim(ctx context.Context, logger *slog.Logger, key string) (bool, error) {
	if b.cache == nil || b.cfg.DedupWindow <= 0 {
		return true, nil
	}
	ok, err := b.cache.SetIfNotExists(ctx, dedupKeyPrefix+key, []byte(pendingClaim), b.cfg.DedupWindow)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return false, cerr
		}
		logger.WarnContext(ctx, "dedup claim unavailable", "error", err)
		return true, nil
	}
	return ok, nil
}

func (b *BulkLoader) rememberLoadID(ctx context.Context, logger *slog.Logger, key, loadID string) {
	if b.cache == nil || b.cfg.DedupWindow <= 0 {
		return
	}
	if err := b.cache.Set(ctx, dedupKeyPrefix+key, []byte(loadID), b.cfg.DedupWindow); err != nil {
		logger.WarnContext(ctx, "dedup claim not updated", "load_id", loadID, "error", err)
	}
}

func (b *BulkLoader) release(ctx context.Context, logger *slog.Logger, key string) {
	if b.cache == nil || b.cfg.DedupWindow <= 0 {
		return
	}
	if _, err := b.cache.Delete(context.WithoutCancel(ctx), dedupKeyPrefix+key); err != nil {
		logger.WarnContext(ctx, "dedup claim not released", "error", err)
	}
}

func (b *BulkLoader) activeRecent(ctx context.Context, logger *slog.Logger, key string) *model.BulkLoadJob {
	if b.cfg.DedupWindow <= 0 {
		return nil
	}
	jobs, err := b.repo.FindRecentBySource(ctx, model.RecentLoadsQuery{
		SourceKey: key,
		Since:     b.now().Add(-b.cfg.DedupWindow),
	})
	if err != nil {
		logger.WarnContext(ctx, "recent job lookup failed", "error", err)
		return nil
	}
	for _, j := range jobs {
		if j.Status.Active() {
			return j
		}
	}
	return nil
}

func (b *BulkLoader) deduplicated(ctx context.Context, logger *slog.Logger, key, reason string) (LoadResult, error) {
	metrics.EmitBulkLoad(b.metrics, metrics.BulkLoadMetric{Transition: metrics.LoadDeduped})
	logger.InfoContext(ctx, "duplicate bulk load suppressed", "reason", reason)
	return LoadResult{Outcome: LoadOutcomeDeduplicated, Key: key}, nil
}

func (b *BulkLoader) rejected(
	ctx context.Context,
	logger *slog.Logger,
	key, source string,
	cause error,
	start time.Time,
) (LoadResult, error) {
	b.release(ctx, logger, key)

	now := b.now().UTC()
	msg := cause.Error()
	job := &model.BulkLoadJob{
		LoadID:      model.FailedSubmissionPrefix + b.newID(),
		SourceKey:   key,
		Source:      source,
		Status:      model.LoadStatusFailed,
		Payload:     model.LoadPayload{OverallStatus: "LOAD_SUBMISSION_FAILED", Errors: []model.LoadError{}},
		Error:       &msg,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := b.repo.Put(ctx, job); err != nil {
		logger.ErrorContext(ctx, "rejected bulk load not recorded", "error", err, "cause", cause)
		return LoadResult{}, fmt.Errorf("record rejected bulk load: %w", err)
	}

	metrics.EmitBulkLoad(b.metrics, metrics.BulkLoadMetric{
		Transition: metrics.LoadRejected,
		Status:     string(job.Status),
		Duration:   b.now().Sub(start),
		Err:        cause,
	})
	logger.ErrorContext(ctx, "bulk load rejected", "load_id", job.LoadID, "error", cause)

	b.notifier.NotifyPipelineFailure(ctx, notify.PipelineFailurePayload{
		Stage:      notify.StageBulkLoad,
		Subject:    job.LoadID,
		FileName:   path.Base(key),
		LoadID:     job.LoadID,
		Error:      msg,
		ErrorClass: obserrors.Classify(cause),
		Metadata:   map[string]string{"source": source},
	})
	return LoadResult{Outcome: LoadOutcomeRejected, Key: key, Job: job}, nil
}
