package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, file_name, file_hash, file_path, status, last_processed_line,
	processed_count, successful_count, skipped_count, failed_count, version, created_at, updated_at`

// JobRepository is the PostgreSQL core.JobStore.
type JobRepository struct {
	db DBTX
}

var _ core.JobStore = (*JobRepository)(nil)

// NewJobRepository creates a job repository.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(row pgx.Row) (*core.ImportJob, error) {
	var j core.ImportJob
	var status string
	err := row.Scan(&j.ID, &j.FileName, &j.FileHash, &j.FilePath, &status, &j.LastProcessedLine,
		&j.ProcessedCount, &j.SuccessfulCount, &j.SkippedCount, &j.FailedCount, &j.Version,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = core.Status(status)
	return &j, nil
}

// Create inserts job unless its hash is already present.
func (r *JobRepository) Create(ctx context.Context, job *core.ImportJob) (*core.ImportJob, bool, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO import_jobs (id, file_name, file_hash, file_path, status, last_processed_line,
			processed_count, successful_count, skipped_count, failed_count, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
		ON CONFLICT (file_hash) DO NOTHING
		RETURNING `+jobColumns,
		job.ID, job.FileName, job.FileHash, job.FilePath, string(job.Status), job.LastProcessedLine,
		job.ProcessedCount, job.SuccessfulCount, job.SkippedCount, job.FailedCount)

	stored, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.FindByHash(ctx, job.FileHash)
		if err != nil {
			return nil, false, fmt.Errorf("load existing job: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	return stored, true, nil
}

// Get returns the job with id.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByHash returns the job for a content hash.
func (r *JobRepository) FindByHash(ctx context.Context, hash string) (*core.ImportJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE file_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by hash: %w", err)
	}
	return job, nil
}

// Update writes status and progress if the stored version still matches.
func (r *JobRepository) Update(ctx context.Context, job *core.ImportJob) error {
	err := r.db.QueryRow(ctx, `
		UPDATE import_jobs
		SET status = $3, last_processed_line = $4, processed_count = $5, successful_count = $6,
			skipped_count = $7, failed_count = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		job.ID, job.Version, string(job.Status), job.LastProcessedLine, job.ProcessedCount,
		job.SuccessfulCount, job.SkippedCount, job.FailedCount,
	).Scan(&job.Version, &job.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM import_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if !exists {
			return core.ErrJobNotFound
		}
		return fmt.Errorf("update job %s at version %d: %w", job.ID, job.Version, core.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns the newest jobs first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*core.ImportJob, error) {
	return r.query(ctx, `SELECT `+jobColumns+` FROM import_jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
}

// ListByStatus returns jobs in any of statuses, oldest first.
func (r *JobRepository) ListByStatus(ctx context.Context, statuses ...core.Status) ([]*core.ImportJob, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.query(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE status = ANY($1) ORDER BY created_at, id`, names)
}

func (r *JobRepository) query(ctx context.Context, sql string, args ...any) ([]*core.ImportJob, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*core.ImportJob, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
