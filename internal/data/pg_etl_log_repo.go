package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/data/pgxutil"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

const etlLogColumns = `id, ts, status, file_name, error, attempt, output_keys, node_label, event_time`

// PGETLLogRepo stores the ETL log in Postgres. Used when LOG_STORE=postgres.
type PGETLLogRepo struct {
	DB *sql.DB
}

// NewPGETLLogRepo creates a new PGETLLogRepo.
func NewPGETLLogRepo(db *sql.DB) *PGETLLogRepo {
	return &PGETLLogRepo{DB: db}
}

// Append inserts one attempt record.
func (r *PGETLLogRepo) Append(ctx context.Context, rec *model.ETLLogRecord) error {
	if err := rec.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid etl log record")
	}
	outputKeys := rec.OutputKeys
	if outputKeys == nil {
		outputKeys = []string{}
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO etl_log (`+etlLogColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, rec.Timestamp, string(rec.Status), rec.FileName, rec.Error,
			rec.Attempt, outputKeys, rec.NodeLabel, rec.EventTime,
		)
		return execErr
	})
	if err != nil {
		if mapped := apperrors.MapDBError(err); apperrors.IsConflict(mapped) {
			return fmt.Errorf("%w: %s@%s", ErrDuplicateETLRecord, rec.ID, rec.Timestamp)
		}
		return fmt.Errorf("insert etl log record: %w", apperrors.MapDBError(err))
	}
	return nil
}

// History returns the attempts recorded for a file, newest first.
func (r *PGETLLogRepo) History(ctx context.Context, q model.ETLHistoryQuery) ([]*model.ETLLogRecord, error) {
	q.Normalize()
	if q.ID == "" {
		return nil, apperrors.ValidationField("id", "id is required")
	}

	out, err := pgxutil.QueryAll(ctx, r.DB, scanETLLogRecord, `
		SELECT `+etlLogColumns+`
		FROM etl_log
		WHERE id = $1
		ORDER BY ts DESC
		LIMIT $2`, q.ID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query etl log: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Latest returns the authoritative record for a file or model.ErrETLLogNotFound.
func (r *PGETLLogRepo) Latest(ctx context.Context, id string) (*model.ETLLogRecord, error) {
	records, err := r.History(ctx, model.ETLHistoryQuery{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, model.ErrETLLogNotFound
	}
	return records[0], nil
}

func scanETLLogRecord(row pgx.Row) (*model.ETLLogRecord, error) {
	var (
		rec    model.ETLLogRecord
		status string
	)
	if err := row.Scan(
		&rec.ID, &rec.Timestamp, &status, &rec.FileName, &rec.Error,
		&rec.Attempt, &rec.OutputKeys, &rec.NodeLabel, &rec.EventTime,
	); err != nil {
		return nil, err
	}
	rec.Status = model.ETLStatus(status)
	if len(rec.OutputKeys) == 0 {
		rec.OutputKeys = nil
	}
	return &rec, nil
}
