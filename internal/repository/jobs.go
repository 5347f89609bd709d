package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmercadier/amortization-extractor/constants"
)

// ExtractionJob is one audit record of an extraction run. The store is a
// downstream consumer only: the pipeline never blocks on it and never reads
// it back during extraction.
type ExtractionJob struct {
	ID         uuid.UUID
	Filename   string
	Status     constants.JobStatus
	Attempts   int
	RowCount   int
	ErrorKind  string
	Detail     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// JobRepository records extraction runs for later inspection.
type JobRepository interface {
	RecordStart(ctx context.Context, id uuid.UUID, filename string) error
	RecordResult(ctx context.Context, id uuid.UUID, status constants.JobStatus, attempts, rowCount int, errorKind, detail string) error
	ListRecent(ctx context.Context, limit int) ([]ExtractionJob, error)
}

type PGJobRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, logger *slog.Logger) *PGJobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGJobRepository{pool: pool, logger: logger}
}

// EnsureSchema creates the history table when it does not exist yet.
func (r *PGJobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extraction_job (
			id          UUID PRIMARY KEY,
			filename    TEXT NOT NULL,
			status      TEXT NOT NULL,
			attempts    INT  NOT NULL DEFAULT 0,
			row_count   INT  NOT NULL DEFAULT 0,
			error_kind  TEXT NOT NULL DEFAULT '',
			detail      TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ
		)`)
	return err
}

func (r *PGJobRepository) RecordStart(ctx context.Context, id uuid.UUID, filename string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extraction_job (id, filename, status)
		VALUES ($1, $2, $3)`,
		id, filename, string(constants.JobStatusDispatching))
	if err != nil {
		r.logger.Warn("jobs.record_start.error", "job_id", id, "error", err)
	}
	return err
}

func (r *PGJobRepository) RecordResult(ctx context.Context, id uuid.UUID, status constants.JobStatus, attempts, rowCount int, errorKind, detail string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE extraction_job
		SET status = $2, attempts = $3, row_count = $4,
		    error_kind = $5, detail = $6, finished_at = now()
		WHERE id = $1`,
		id, string(status), attempts, rowCount, errorKind, detail)
	if err != nil {
		r.logger.Warn("jobs.record_result.error", "job_id", id, "error", err)
	}
	return err
}

func (r *PGJobRepository) ListRecent(ctx context.Context, limit int) ([]ExtractionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, filename, status, attempts, row_count, error_kind, detail, started_at, finished_at
		FROM extraction_job
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ExtractionJob
	for rows.Next() {
		var j ExtractionJob
		var status string
		if err := rows.Scan(&j.ID, &j.Filename, &status, &j.Attempts, &j.RowCount,
			&j.ErrorKind, &j.Detail, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		j.Status = constants.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
