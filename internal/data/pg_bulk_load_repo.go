package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/data/pgxutil"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

const bulkLoadColumns = `load_id, source_key, source, status, payload, start_time, total_time_spent, error,
	submitted_at, updated_at`

// PGBulkLoadRepo stores bulk-load records in Postgres. Used when LOG_STORE=postgres.
type PGBulkLoadRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewPGBulkLoadRepo creates a new PGBulkLoadRepo with the real clock.
func NewPGBulkLoadRepo(db *sql.DB) *PGBulkLoadRepo {
	return &PGBulkLoadRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewPGBulkLoadRepoWithTimeProvider creates a PGBulkLoadRepo with a custom clock (useful for tests).
func NewPGBulkLoadRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *PGBulkLoadRepo {
	return &PGBulkLoadRepo{DB: db, timeProvider: tp}
}

// Put creates or replaces the record for a job.
func (r *PGBulkLoadRepo) Put(ctx context.Context, job *model.BulkLoadJob) error {
	if err := job.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid bulk load job")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	now := r.timeProvider.Now().UTC()
	submittedAt := job.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = now
	}
	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO bulk_load_jobs (`+bulkLoadColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (load_id) DO UPDATE SET
				source_key = EXCLUDED.source_key,
				source = EXCLUDED.source,
				status = EXCLUDED.status,
				payload = EXCLUDED.payload,
				start_time = EXCLUDED.start_time,
				total_time_spent = EXCLUDED.total_time_spent,
				error = EXCLUDED.error,
				updated_at = EXCLUDED.updated_at`,
			job.LoadID, job.SourceKey, job.Source, string(job.Status), payload,
			job.StartTime, job.TotalTimeSpent, job.Error, submittedAt, updatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert bulk load job: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get returns the record for loadID or model.ErrBulkLoadNotFound.
func (r *PGBulkLoadRepo) Get(ctx context.Context, loadID string) (*model.BulkLoadJob, error) {
	if loadID == "" {
		return nil, ErrLoadIDRequired
	}
	var job *model.BulkLoadJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var scanErr error
		job, scanErr = scanBulkLoadJob(conn.QueryRow(ctx,
			`SELECT `+bulkLoadColumns+` FROM bulk_load_jobs WHERE load_id = $1`, loadID))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrBulkLoadNotFound
		}
		return nil, fmt.Errorf("get bulk load job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// UpdateStatus overwrites the status snapshot of an existing record.
func (r *PGBulkLoadRepo) UpdateStatus(ctx context.Context, p model.UpdateLoadStatusParams) error {
	if p.LoadID == "" {
		return ErrLoadIDRequired
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.timeProvider.Now().UTC()
	}

	var affected int64
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `
			UPDATE bulk_load_jobs
			SET status = $2, payload = $3, start_time = $4, total_time_spent = $5, updated_at = $6
			WHERE load_id = $1`,
			p.LoadID, string(p.Status), payload, p.StartTime, p.TotalTimeSpent, updatedAt,
		)
		affected = tag.RowsAffected()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update bulk load status: %w", apperrors.MapDBError(err))
	}
	if affected == 0 {
		return model.ErrBulkLoadNotFound
	}
	return nil
}

// FindRecentBySource returns jobs for a source key submitted at or after q.Since, newest first.
func (r *PGBulkLoadRepo) FindRecentBySource(
	ctx context.Context,
	q model.RecentLoadsQuery,
) ([]*model.BulkLoadJob, error) {
	if q.SourceKey == "" {
		return nil, ErrSourceKeyMissing
	}
	out, err := pgxutil.QueryAll(ctx, r.DB, scanBulkLoadJob, `
		SELECT `+bulkLoadColumns+`
		FROM bulk_load_jobs
		WHERE source_key = $1 AND submitted_at >= $2
		ORDER BY submitted_at DESC`, q.SourceKey, q.Since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bulk loads by source: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func scanBulkLoadJob(row pgx.Row) (*model.BulkLoadJob, error) {
	var (
		job     model.BulkLoadJob
		status  string
		payload []byte
	)
	if err := row.Scan(
		&job.LoadID, &job.SourceKey, &job.Source, &status, &payload,
		&job.StartTime, &job.TotalTimeSpent, &job.Error, &job.SubmittedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = model.LoadStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &job, nil
}
