package core

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// DefaultListLimit caps job listings when no limit is given.
const DefaultListLimit = 50

// Service is the entry point used by transports. It combines intake with
// read access to jobs and talks.
type Service struct {
	jobs    JobStore
	talks   TalkStore
	intake  *Intake
	limiter *UploadLimiter
}

// NewService wires a service. limiter may be nil to disable upload limits.
func NewService(jobs JobStore, talks TalkStore, intake *Intake, limiter *UploadLimiter) *Service {
	return &Service{jobs: jobs, talks: talks, intake: intake, limiter: limiter}
}

// Intake returns the underlying intake.
func (s *Service) Intake() *Intake { return s.intake }

// Limiter returns the upload limiter, possibly nil.
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// Upload submits an uploaded file, holding an upload slot while the bytes
// are stored and hashed.
func (s *Service) Upload(ctx context.Context, r io.Reader, fileName string) (*ImportJob, bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, false, err
		}
		defer s.limiter.Release()
	}
	return s.intake.SubmitUploadedFile(ctx, r, fileName)
}

// StartImport triggers an existing job.
func (s *Service) StartImport(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	return s.intake.StartImport(ctx, id)
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs returns the newest jobs first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*ImportJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.jobs.List(ctx, limit)
}

// TalkCount returns the number of stored talks.
func (s *Service) TalkCount(ctx context.Context) (int64, error) {
	return s.talks.Count(ctx)
}
