// Package memdb is an in-memory implementation of the job and talk stores
// with the same uniqueness and compare-and-swap rules as the database.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/talkimport/internal/core"
	"github.com/google/uuid"
)

// Store holds jobs and talks in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]core.ImportJob
	byHash map[string]uuid.UUID
	talks  map[core.TalkKey]core.Talk
	now    func() time.Time

	// FailInsertAfter makes Insert fail once this many talks are stored.
	// Zero disables it. Used to simulate store outages.
	FailInsertAfter int
}

var (
	_ core.JobStore  = (*Store)(nil)
	_ core.TalkStore = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		jobs:   make(map[uuid.UUID]core.ImportJob),
		byHash: make(map[string]uuid.UUID),
		talks:  make(map[core.TalkKey]core.Talk),
		now:    time.Now,
	}
}

func normalizeKey(k core.TalkKey) core.TalkKey {
	y, m, d := k.Date.Date()
	k.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return k
}

// Create inserts job unless its hash is already present.
func (s *Store) Create(_ context.Context, job *core.ImportJob) (*core.ImportJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[job.FileHash]; ok {
		existing := s.jobs[id]
		return &existing, false, nil
	}
	if _, ok := s.jobs[job.ID]; ok {
		return nil, false, fmt.Errorf("insert job: duplicate key id %s", job.ID)
	}

	stored := *job
	stored.Version = 0
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[stored.ID] = stored
	s.byHash[stored.FileHash] = stored.ID

	out := stored
	return &out, true, nil
}

// Get returns the job with id.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return &j, nil
}

// FindByHash returns the job for a content hash.
func (s *Store) FindByHash(_ context.Context, hash string) (*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	j := s.jobs[id]
	return &j, nil
}

// Update writes status and progress if the stored version still matches.
func (s *Store) Update(ctx context.Context, job *core.ImportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return core.ErrJobNotFound
	}
	if cur.Version != job.Version {
		return fmt.Errorf("update job %s at version %d: %w", job.ID, job.Version, core.ErrVersionConflict)
	}

	cur.Status = job.Status
	cur.SetProgress(job.Progress())
	cur.Version++
	cur.UpdatedAt = s.now()
	s.jobs[job.ID] = cur

	job.Version = cur.Version
	job.UpdatedAt = cur.UpdatedAt
	return nil
}

// List returns the newest jobs first.
func (s *Store) List(_ context.Context, limit int) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.sorted(func(core.ImportJob) bool { return true })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByStatus returns jobs in any of statuses, oldest first.
func (s *Store) ListByStatus(_ context.Context, statuses ...core.Status) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[core.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.sorted(func(j core.ImportJob) bool { return want[j.Status] }), nil
}

// sorted returns matching jobs oldest first. Caller holds the lock.
func (s *Store) sorted(match func(core.ImportJob) bool) []*core.ImportJob {
	var out []*core.ImportJob
	for _, j := range s.jobs {
		if match(j) {
			j := j
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out
}

// Exists reports whether a talk with the natural key is stored.
func (s *Store) Exists(ctx context.Context, key core.TalkKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.talks[normalizeKey(key)]
	return ok, nil
}

// Insert stores t unless its natural key is already present.
func (s *Store) Insert(ctx context.Context, t core.Talk) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsertAfter > 0 && len(s.talks) >= s.FailInsertAfter {
		return false, fmt.Errorf("insert talk: connection refused")
	}
	key := normalizeKey(t.Key())
	if _, ok := s.talks[key]; ok {
		return false, nil
	}
	s.talks[key] = t
	return true, nil
}

// Count returns the number of stored talks.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.talks)), nil
}

// Talks returns all stored talks ordered by title.
func (s *Store) Talks() []core.Talk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Talk, 0, len(s.talks))
	for _, t := range s.talks {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Title < out[b].Title })
	return out
}

// Put stores a talk directly, bypassing import.
func (s *Store) Put(t core.Talk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.talks[normalizeKey(t.Key())] = t
}
