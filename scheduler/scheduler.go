// Package scheduler runs one-shot jobs at a fixed instant. Jobs are armed as
// single timers computed from fireAt - now, never as recurring expressions.
// When a JobStore is configured pending jobs are persisted and can be
// re-armed after a restart with Restore.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	models "github.com/phillip/volunteer-listings-go/models"
)

var (
	ErrNoHandler = errors.New("scheduler: no handler for job kind")
	ErrStopped   = errors.New("scheduler: stopped")
)

type Job = models.ReminderJob

type HandlerFunc func(ctx context.Context, job Job) error

// JobStore persists scheduled jobs.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	Delete(ctx context.Context, id string) error
	Finish(ctx context.Context, id, status, lastError string, at time.Time) error
	Pending(ctx context.Context) ([]Job, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type entry struct {
	timer Timer
	gen   uint64
}

type Scheduler struct {
	clock      Clock
	store      JobStore
	runTimeout time.Duration

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	timers   map[string]entry
	gen      uint64
	stopped  bool
	running  sync.WaitGroup
}

// New creates a scheduler. store may be nil for in-memory only operation.
func New(clock Clock, store JobStore) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:      clock,
		store:      store,
		runTimeout: 2 * time.Minute,
		handlers:   map[string]HandlerFunc{},
		timers:     map[string]entry{},
	}
}

// Handle registers the function run when a job of kind fires.
func (s *Scheduler) Handle(kind string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Schedule persists (when a store is set) and arms job. An empty ID gets a
// generated one; scheduling an existing ID replaces the previous timer.
func (s *Scheduler) Schedule(ctx context.Context, job Job) (string, error) {
	s.mu.Lock()
	_, ok := s.handlers[job.Kind]
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoHandler, job.Kind)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.JobPending
	job.LastError = ""
	job.FinishedAt = nil
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now()
	}

	if s.store != nil {
		if err := s.store.Save(ctx, job); err != nil {
			return "", fmt.Errorf("persist job %s: %w", job.ID, err)
		}
	}
	s.arm(job)
	return job.ID, nil
}

// Cancel disarms the job and removes it from the store. Unknown ids are ignored.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	if e, ok := s.timers[id]; ok {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete job %s: %w", id, err)
		}
	}
	return nil
}

// Restore re-arms every pending job from the store. Overdue jobs fire at once.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	jobs, err := s.store.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending jobs: %w", err)
	}
	n := 0
	for _, job := range jobs {
		s.mu.Lock()
		_, ok := s.handlers[job.Kind]
		s.mu.Unlock()
		if !ok {
			log.Printf("scheduler: skip job %s with unknown kind %q", job.ID, job.Kind)
			continue
		}
		s.arm(job)
		n++
	}
	return n, nil
}

// Scheduled reports whether id is armed.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop disarms all timers and waits for running handlers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.running.Wait()
}

func (s *Scheduler) arm(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[job.ID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen

	delay := job.FireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	// The callback blocks on s.mu until this entry is recorded.
	t := s.clock.AfterFunc(delay, func() { s.fire(job, gen) })
	s.timers[job.ID] = entry{timer: t, gen: gen}
}

func (s *Scheduler) fire(job Job, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[job.ID]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, job.ID)
	h := s.handlers[job.Kind]
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	status, lastErr := models.JobDone, ""
	if err := h(ctx, job); err != nil {
		status, lastErr = models.JobFailed, err.Error()
		log.Printf("scheduler: job %s (%s) failed: %v", job.ID, job.Kind, err)
	}
	if s.store != nil {
		if err := s.store.Finish(ctx, job.ID, status, lastErr, s.clock.Now()); err != nil {
			log.Printf("scheduler: record job %s: %v", job.ID, err)
		}
	}
}
