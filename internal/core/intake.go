package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/talkimport/internal/logging"
	"github.com/google/uuid"
)

// DefaultMaxFileSize bounds uploads when no limit is configured (100MB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// IntakeConfig configures where uploads are stored.
type IntakeConfig struct {
	UploadDir   string
	MaxFileSize int64
}

// Intake accepts files, deduplicates them by content hash and triggers
// their import.
type Intake struct {
	jobs    JobStore
	starter JobStarter
	cfg     IntakeConfig
}

// NewIntake creates an intake that starts new jobs through starter.
func NewIntake(jobs JobStore, starter JobStarter, cfg IntakeConfig) *Intake {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Intake{jobs: jobs, starter: starter, cfg: cfg}
}

// SubmitUploadedFile stores r in the upload directory and creates a
// PENDING job for it. When a job with the same content already exists the
// stored copy is discarded and that job is returned with created == false.
func (in *Intake) SubmitUploadedFile(ctx context.Context, r io.Reader, fileName string) (*ImportJob, bool, error) {
	if err := os.MkdirAll(in.cfg.UploadDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(in.cfg.UploadDir, ".upload-*.csv")
	if err != nil {
		return nil, false, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath)
		}
	}()

	hw := newHashingWriter(tmp)
	_, copyErr := io.Copy(hw, io.LimitReader(r, in.cfg.MaxFileSize+1))
	closeErr := tmp.Close()
	if copyErr != nil {
		return nil, false, fmt.Errorf("store upload: %w", copyErr)
	}
	if closeErr != nil {
		return nil, false, fmt.Errorf("store upload: %w", closeErr)
	}
	if hw.n > in.cfg.MaxFileSize {
		return nil, false, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, in.cfg.MaxFileSize)
	}

	hash := hw.Sum()
	if existing, err := in.jobs.FindByHash(ctx, hash); err == nil {
		logging.FromContext(ctx).Info("duplicate upload", "file_name", fileName, "job_id", existing.ID)
		return existing, false, nil
	} else if !errors.Is(err, ErrJobNotFound) {
		return nil, false, fmt.Errorf("find job by hash: %w", err)
	}

	dest, err := filepath.Abs(filepath.Join(in.cfg.UploadDir, storedName(hash, fileName)))
	if err != nil {
		return nil, false, fmt.Errorf("resolve upload path: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, false, fmt.Errorf("store upload: %w", err)
	}
	keep = true

	return in.create(ctx, NewImportJob(fileName, hash, dest))
}

// SubmitDiscoveredFile creates a PENDING job for a file already on disk,
// referencing it in place. An existing job with the same content is
// returned with created == false.
func (in *Intake) SubmitDiscoveredFile(ctx context.Context, path, fileName string) (*ImportJob, bool, error) {
	if fileName == "" {
		fileName = filepath.Base(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", path, err)
	}

	hash, err := HashFile(abs)
	if err != nil {
		return nil, false, err
	}

	if existing, err := in.jobs.FindByHash(ctx, hash); err == nil {
		logging.FromContext(ctx).Debug("file already imported", "path", abs, "job_id", existing.ID)
		return existing, false, nil
	} else if !errors.Is(err, ErrJobNotFound) {
		return nil, false, fmt.Errorf("find job by hash: %w", err)
	}

	return in.create(ctx, NewImportJob(fileName, hash, abs))
}

// StartImport triggers the import of an existing job. Completed jobs are
// returned unchanged. A FAILED or interrupted job resumes from its cursor.
func (in *Intake) StartImport(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	job, err := in.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == StatusCompleted {
		return job, nil
	}
	err = in.starter.Start(ctx, job)
	job = in.reload(ctx, job)
	if err != nil {
		return job, fmt.Errorf("start import %s: %w", job.ID, err)
	}
	return job, nil
}

// create stores job and triggers it when it is new. A trigger failure is
// logged only: the job is durable and can be started again later.
func (in *Intake) create(ctx context.Context, job *ImportJob) (*ImportJob, bool, error) {
	stored, created, err := in.jobs.Create(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	logger := logging.WithFields(ctx, "job_id", stored.ID, "file_name", stored.FileName)
	if !created {
		logger.Info("job already exists for content")
		return stored, false, nil
	}

	logger.Info("import job created", "file_hash", stored.FileHash)
	if err := in.starter.Start(ctx, stored); err != nil {
		logger.Warn("import not started or not completed", "error", err)
	}
	return in.reload(ctx, stored), true, nil
}

// reload returns the stored state of job, or job itself if that fails.
func (in *Intake) reload(ctx context.Context, job *ImportJob) *ImportJob {
	fresh, err := in.jobs.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return job
	}
	return fresh
}

// storedName is the upload file name: a hash prefix keeps different
// contents with the same name apart.
func storedName(hash, fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.csv"
	}
	prefix := hash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return prefix + "_" + base
}

// IsCSVFileName reports whether name has a .csv extension.
func IsCSVFileName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
