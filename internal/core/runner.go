package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/talkimport/internal/logging"
	"github.com/google/uuid"
)

// DefaultBatchSize is the number of rows written between checkpoints.
const DefaultBatchSize = 100

// RunnerConfig is the runner's explicit configuration.
type RunnerConfig struct {
	// BatchSize is the number of rows per checkpoint.
	BatchSize int

	// Open opens a job's file. Defaults to os.Open.
	Open func(path string) (io.ReadCloser, error)
}

// Runner drives one import job from its checkpoint to COMPLETED or FAILED.
type Runner struct {
	jobs   JobStore
	writer *BatchWriter
	cfg    RunnerConfig
}

// NewRunner creates a runner. A non-positive batch size is replaced by
// DefaultBatchSize.
func NewRunner(jobs JobStore, writer *BatchWriter, cfg RunnerConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Open == nil {
		cfg.Open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	return &Runner{jobs: jobs, writer: writer, cfg: cfg}
}

// BatchSize returns the configured rows per checkpoint.
func (r *Runner) BatchSize() int { return r.cfg.BatchSize }

// Start runs job synchronously. It satisfies JobStarter.
func (r *Runner) Start(ctx context.Context, job *ImportJob) error {
	_, err := r.Run(ctx, job.ID)
	return err
}

// Run loads the job and imports its file, resuming after LastProcessedLine.
//
// Progress is checkpointed after every batch. A structural failure marks the
// job FAILED with the counters of the last checkpoint. If ctx is cancelled
// the job keeps its last checkpoint and stays IN_PROGRESS so it can be
// resumed. A version conflict means another runner owns the job; it is
// returned without touching the stored job.
func (r *Runner) Run(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if job.Status == StatusCompleted {
		return job, nil
	}

	ctx = logging.WithJobID(ctx, job.ID.String())
	logger := logging.WithFields(ctx, "file_name", job.FileName)
	checkpoint := job.Progress()

	fail := func(cause error) (*ImportJob, error) {
		return job, r.fail(ctx, job, checkpoint, cause, logger)
	}

	f, err := r.cfg.Open(job.FilePath)
	if err != nil {
		return fail(fmt.Errorf("open %s: %w", job.FilePath, err))
	}
	defer f.Close()

	reader, err := NewTalkReaderFromCSV(f)
	if err != nil {
		return fail(err)
	}

	if resumeFrom := job.LastProcessedLine; resumeFrom > 0 {
		skipped, err := reader.Skip(resumeFrom)
		if err != nil {
			return fail(err)
		}
		if skipped < resumeFrom {
			logger.Warn("file has fewer rows than the recorded cursor", "cursor", resumeFrom, "rows", skipped)
		}
		logger.Info("resuming import", "skipped_rows", skipped)
	} else {
		logger.Info("import started", "batch_size", r.cfg.BatchSize)
	}

	job.Status = StatusInProgress
	if err := r.jobs.Update(ctx, job); err != nil {
		return fail(fmt.Errorf("mark in progress: %w", err))
	}

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("import interrupted", "last_processed_line", checkpoint.LastProcessedLine)
			return job, err
		}

		batch, err := reader.ReadBatch(r.cfg.BatchSize)
		if err != nil {
			return fail(err)
		}
		if len(batch) == 0 {
			break
		}

		p := checkpoint
		if err := r.writer.WriteBatch(ctx, job.ID, batch, &p, logger); err != nil {
			return fail(err)
		}
		p.LastProcessedLine = reader.RowsRead()

		job.SetProgress(p)
		if err := r.jobs.Update(ctx, job); err != nil {
			job.SetProgress(checkpoint)
			return fail(fmt.Errorf("checkpoint: %w", err))
		}
		checkpoint = p
		logger.Debug("checkpoint",
			"last_processed_line", p.LastProcessedLine,
			"succeeded", p.Succeeded,
			"skipped", p.Skipped,
			"failed", p.Failed,
		)
	}

	job.Status = StatusCompleted
	if err := r.jobs.Update(ctx, job); err != nil {
		return fail(fmt.Errorf("mark completed: %w", err))
	}

	logger.Info("import completed",
		"processed", job.ProcessedCount,
		"succeeded", job.SuccessfulCount,
		"skipped", job.SkippedCount,
		"failed", job.FailedCount,
	)
	return job, nil
}

// fail records FAILED with the checkpointed counters and returns cause.
func (r *Runner) fail(ctx context.Context, job *ImportJob, checkpoint Progress, cause error, logger *slog.Logger) error {
	if errors.Is(cause, ErrVersionConflict) {
		logger.Warn("job modified concurrently, abandoning run", "error", cause)
		return cause
	}
	if ctx.Err() != nil {
		logger.Info("import interrupted", "last_processed_line", checkpoint.LastProcessedLine, "error", cause)
		return cause
	}

	job.SetProgress(checkpoint)
	job.Status = StatusFailed
	if err := r.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("could not record failure", "error", err, "cause", cause)
		return errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}

	logger.Error("import failed",
		"error", cause,
		"last_processed_line", checkpoint.LastProcessedLine,
	)
	return cause
}
