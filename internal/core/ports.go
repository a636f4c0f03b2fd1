package core

import (
	"context"

	"github.com/google/uuid"
)

// JobStore persists import jobs. Implementations must make Create
// idempotent on FileHash and Update a compare-and-swap on Version.
type JobStore interface {
	// Create inserts job unless a job with the same FileHash exists, in which
	// case the existing job is returned with created == false.
	Create(ctx context.Context, job *ImportJob) (stored *ImportJob, created bool, err error)

	// Get returns ErrJobNotFound when id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*ImportJob, error)

	// FindByHash returns ErrJobNotFound when no job has the hash.
	FindByHash(ctx context.Context, hash string) (*ImportJob, error)

	// Update writes status and progress only if the stored version equals
	// job.Version, returning ErrVersionConflict otherwise. On success job's
	// Version and UpdatedAt reflect the stored row.
	Update(ctx context.Context, job *ImportJob) error

	// List returns jobs newest first, at most limit of them.
	List(ctx context.Context, limit int) ([]*ImportJob, error)

	// ListByStatus returns jobs in any of the given states, oldest first.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*ImportJob, error)
}

// TalkStore persists imported talks.
type TalkStore interface {
	// Exists reports whether a talk with the natural key is stored.
	Exists(ctx context.Context, key TalkKey) (bool, error)

	// Insert stores t unless its natural key is already present.
	Insert(ctx context.Context, t Talk) (inserted bool, err error)

	// Count returns the number of stored talks.
	Count(ctx context.Context) (int64, error)
}
