package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/etl"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/metrics"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/observability/statsd"
)

// LoadStatusServiceOptions groups dependencies for LoadStatusService.
type LoadStatusServiceOptions struct {
	Loader  core.GraphLoader        // Required
	Repo    core.BulkLoadRepository // Required
	Metrics statsd.Sink             // Optional
	Logger  *slog.Logger            // Optional
	Now     func() time.Time        // Optional
}

// LoadStatusService answers on-demand status queries for bulk-load jobs.
type LoadStatusService struct {
	loader  core.GraphLoader
	repo    core.BulkLoadRepository
	metrics statsd.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewLoadStatusService validates opts and constructs the service.
func NewLoadStatusService(opts LoadStatusServiceOptions) (*LoadStatusService, error) {
	if opts.Loader == nil {
		return nil, errors.New("GraphLoader is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("BulkLoadRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LoadStatusService{
		loader:  opts.Loader,
		repo:    opts.Repo,
		metrics: opts.Metrics,
		logger:  logger.With("component", "load_status"),
		now:     now,
	}, nil
}

// Get returns the stored record without contacting the engine.
func (s *LoadStatusService) Get(ctx context.Context, loadID string) (*model.BulkLoadJob, error) {
	loadID = strings.TrimSpace(loadID)
	if loadID == "" {
		return nil, apperrors.ValidationField("loadId", "loadId is required")
	}
	job, err := s.repo.Get(ctx, loadID)
	if err != nil {
		if errors.Is(err, model.ErrBulkLoadNotFound) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "bulk load not found")
		}
		return nil, fmt.Errorf("get bulk load: %w", err)
	}
	return job, nil
}

// Check fetches the engine status, normalizes it and refreshes the stored snapshot.
// An id the engine does not know is reported with status not_found.
func (s *LoadStatusService) Check(ctx context.Context, loadID string) (*model.LoadStatusReport, error) {
	loadID = strings.TrimSpace(loadID)
	if loadID == "" {
		return nil, apperrors.ValidationField("loadId", "loadId is required")
	}
	start := s.now()
	logger := s.logger.With("load_id", loadID)

	stored, err := s.repo.Get(ctx, loadID)
	if err != nil {
		if !errors.Is(err, model.ErrBulkLoadNotFound) {
			logger.WarnContext(ctx, "stored bulk load unavailable", "error", err)
		}
		stored = nil
	}
	if stored.IsFailedSubmission() {
		return reportFromJob(stored), nil
	}

	engine, err := s.loader.LoadStatus(ctx, loadID)
	if err != nil {
		metrics.EmitBulkLoad(s.metrics, metrics.BulkLoadMetric{Transition: metrics.LoadChecked, Err: err})
		return nil, fmt.Errorf("load status %s: %w", loadID, err)
	}

	status := etl.NormalizeLoadStatus(*engine)
	report := &model.LoadStatusReport{
		LoadID:         loadID,
		Status:         status,
		Payload:        engine.Payload,
		StartTime:      engine.StartTime,
		TotalTimeSpent: engine.TotalTimeSpent,
	}
	if report.Payload.Errors == nil {
		report.Payload.Errors = []model.LoadError{}
	}
	if stored != nil {
		report.SourceKey = stored.SourceKey
	}

	if engine.Found {
		s.persist(ctx, logger, stored, report)
	}

	metrics.EmitBulkLoad(s.metrics, metrics.BulkLoadMetric{
		Transition: metrics.LoadChecked,
		Status:     string(status),
		Duration:   s.now().Sub(start),
	})
	logger.DebugContext(ctx, "load status checked", "status", status, "raw_status", etl.RawLoadStatus(*engine))
	return report, nil
}

// persist overwrites the stored snapshot, creating the record if the engine
// knows a job the log does not. Failures only degrade the log.
func (s *LoadStatusService) persist(ctx context.Context, logger *slog.Logger, stored *model.BulkLoadJob, report *model.LoadStatusReport) {
	now := s.now().UTC()
	if stored != nil {
		err := s.repo.UpdateStatus(ctx, model.UpdateLoadStatusParams{
			LoadID:         report.LoadID,
			Status:         report.Status,
			Payload:        report.Payload,
			StartTime:      report.StartTime,
			TotalTimeSpent: report.TotalTimeSpent,
			UpdatedAt:      now,
		})
		if err == nil {
			return
		}
		if !errors.Is(err, model.ErrBulkLoadNotFound) {
			logger.WarnContext(ctx, "status snapshot not saved", "error", err)
			return
		}
	}
	err := s.repo.Put(ctx, &model.BulkLoadJob{
		LoadID:         report.LoadID,
		Status:         report.Status,
		Payload:        report.Payload,
		StartTime:      report.StartTime,
		TotalTimeSpent: report.TotalTimeSpent,
		SubmittedAt:    now,
		UpdatedAt:      now,
	})
	if err != nil {
		logger.WarnContext(ctx, "status snapshot not created", "error", err)
	}
}

func reportFromJob(job *model.BulkLoadJob) *model.LoadStatusReport {
	report := &model.LoadStatusReport{
		LoadID:         job.LoadID,
		Status:         job.Status,
		Payload:        job.Payload,
		StartTime:      job.StartTime,
		TotalTimeSpent: job.TotalTimeSpent,
		SourceKey:      job.SourceKey,
	}
	if job.Error != nil {
		report.Error = *job.Error
	}
	if report.Payload.Errors == nil {
		report.Payload.Errors = []model.LoadError{}
	}
	return report
}
