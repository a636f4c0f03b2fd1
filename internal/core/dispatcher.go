package core

// dispatcher.go hands jobs from intake to a fixed pool of workers over a
// bounded queue. Each job runs on exactly one worker; a job already queued
// or running is not queued again.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// JobStarter triggers the import of a job. The runner starts synchronously;
// the dispatcher queues the job and returns immediately.
type JobStarter interface {
	Start(ctx context.Context, job *ImportJob) error
}

// JobRunner runs a single job to completion.
type JobRunner interface {
	Run(ctx context.Context, id uuid.UUID) (*ImportJob, error)
}

var (
	_ JobStarter = (*Dispatcher)(nil)
	_ JobStarter = (*Runner)(nil)
	_ JobRunner  = (*Runner)(nil)
)

// DispatcherStatus is a snapshot for monitoring.
type DispatcherStatus struct {
	Workers   int `json:"workers"`
	Queued    int `json:"queued"`
	Scheduled int `json:"scheduled"`
	Capacity  int `json:"capacity"`
}

// Dispatcher runs queued jobs on a worker pool.
type Dispatcher struct {
	runner  JobRunner
	workers int
	queue   chan uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	scheduled map[uuid.UUID]struct{} // queued or running
	started   bool
	closed    bool
}

// NewDispatcher creates a dispatcher; call Run to start its workers.
func NewDispatcher(runner JobRunner, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:    runner,
		workers:   workers,
		queue:     make(chan uuid.UUID, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		scheduled: make(map[uuid.UUID]struct{}),
	}
}

// Run starts the workers. It is safe to call more than once.
func (d *Dispatcher) Run() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	slog.Info("import dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Start queues job. It returns ErrQueueFull when the queue has no room and
// ErrDispatcherClosed after Stop. Queuing a job that is already queued or
// running is a no-op.
func (d *Dispatcher) Start(_ context.Context, job *ImportJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if _, ok := d.scheduled[job.ID]; ok {
		slog.Debug("job already scheduled", "job_id", job.ID)
		return nil
	}

	select {
	case d.queue <- job.ID:
		d.scheduled[job.ID] = struct{}{}
		return nil
	default:
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, cap(d.queue))
	}
}

// Stop cancels running jobs at their next batch boundary and waits for the
// workers to exit or ctx to expire. Interrupted jobs stay IN_PROGRESS.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("import dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current queue state.
func (d *Dispatcher) Status() DispatcherStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStatus{
		Workers:   d.workers,
		Queued:    len(d.queue),
		Scheduled: len(d.scheduled),
		Capacity:  cap(d.queue),
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case jobID := <-d.queue:
			d.execute(id, jobID)
		}
	}
}

func (d *Dispatcher) execute(workerID int, jobID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "worker_id", workerID, "job_id", jobID, "panic", r)
		}
		d.mu.Lock()
		delete(d.scheduled, jobID)
		d.mu.Unlock()
	}()

	job, err := d.runner.Run(d.ctx, jobID)
	if err != nil {
		if d.ctx.Err() != nil {
			slog.Info("job interrupted by shutdown", "worker_id", workerID, "job_id", jobID)
			return
		}
		slog.Error("job failed", "worker_id", workerID, "job_id", jobID, "error", err)
		return
	}
	slog.Debug("job finished", "worker_id", workerID, "job_id", jobID, "status", job.Status)
}
