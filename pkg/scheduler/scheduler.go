// Package scheduler turns schedule firings into queued work. It keeps the
// schedule→callback bindings and runs a worker loop over an internal job
// queue so a firing source is never blocked by the work it starts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/forgeops/automaton/pkg/models"
)

// ErrUnknownSchedule is returned when a schedule name has no callback bound.
var ErrUnknownSchedule = errors.New("unknown schedule")

const defaultQueueSize = 256

// Callback is invoked when a schedule fires.
type Callback func(ctx context.Context, event models.ScheduleEvent) error

// JobFunc is a queued unit of work.
type JobFunc func(ctx context.Context) error

// Job is a submitted unit of work awaiting the worker loop.
type Job struct {
	ID   string
	Name string
	fn   JobFunc
}

// Scheduler binds schedules to callbacks and drains a job queue with a
// single background worker. The cron runner provides the real timer path;
// TriggerSchedule provides the manual one.
type Scheduler struct {
	logger *slog.Logger

	mu        sync.RWMutex
	schedules map[string]models.Schedule
	callbacks map[string]Callback
	entries   map[string]cron.EntryID
	running   bool

	cron   *cron.Cron
	queue  chan Job
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:    logger.With("module", "scheduler"),
		schedules: make(map[string]models.Schedule),
		callbacks: make(map[string]Callback),
		entries:   make(map[string]cron.EntryID),
		queue:     make(chan Job, defaultQueueSize),
	}
}

// Start launches the worker loop and the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for name, schedule := range s.schedules {
		if err := s.addCronEntry(ctx, name, schedule.CronExpression); err != nil {
			s.logger.Error("Failed to arm schedule", "schedule", name, "error", err)
		}
	}

	s.cron.Start()

	go s.worker(ctx)

	s.logger.Info("Scheduler started", "schedules", len(s.schedules))

	return nil
}

// Stop halts the cron runner and the worker loop. Queued jobs that have not
// started are abandoned.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return nil
	}

	s.running = false
	close(s.stopCh)
	done := s.doneCh

	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Unlock()

	<-done
	s.logger.Info("Scheduler stopped")

	return nil
}

// AddSchedule registers the schedule metadata. When the scheduler is already
// running the cron entry is armed immediately.
func (s *Scheduler) AddSchedule(ctx context.Context, schedule models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[schedule.Name] = schedule

	if s.running {
		if entryID, ok := s.entries[schedule.Name]; ok {
			s.cron.Remove(entryID)
			delete(s.entries, schedule.Name)
		}

		return s.addCronEntry(ctx, schedule.Name, schedule.CronExpression)
	}

	return nil
}

// AddCallback binds the callback invoked when the named schedule fires.
func (s *Scheduler) AddCallback(scheduleName string, callback Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callbacks[scheduleName] = callback
	s.logger.Debug("Bound schedule callback", "schedule", scheduleName)
}

// TriggerSchedule fires the named schedule immediately. Both the cron timer
// path and tests go through here.
func (s *Scheduler) TriggerSchedule(ctx context.Context, scheduleName string, data map[string]any) error {
	s.mu.RLock()
	callback, ok := s.callbacks[scheduleName]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, scheduleName)
	}

	event := models.ScheduleEvent{ScheduleName: scheduleName, Data: data}

	if err := callback(ctx, event); err != nil {
		return fmt.Errorf("schedule %q callback failed: %w", scheduleName, err)
	}

	return nil
}

// SubmitJob enqueues work for the worker loop and returns immediately.
func (s *Scheduler) SubmitJob(name string, fn JobFunc) (Job, error) {
	job := Job{
		ID:   uuid.New().String(),
		Name: name,
		fn:   fn,
	}

	select {
	case s.queue <- job:
		s.logger.Debug("Job submitted", "job_id", job.ID, "job_name", name)

		return job, nil
	default:
		return Job{}, fmt.Errorf("job queue full, rejecting job %q", name)
	}
}

// Schedules returns the registered schedules.
func (s *Scheduler) Schedules() []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule)
	}

	return out
}

// worker drains the job queue, running each job to completion sequentially.
func (s *Scheduler) worker(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case job := <-s.queue:
			s.runJob(ctx, job)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	logger := s.logger.With("job_id", job.ID, "job_name", job.Name)
	logger.Info("Executing job")

	if err := job.fn(ctx); err != nil {
		logger.Error("Job failed", "error", err)

		return
	}

	logger.Info("Job completed")
}

// addCronEntry arms the timer path for one schedule. Callers hold s.mu.
func (s *Scheduler) addCronEntry(ctx context.Context, name, expression string) error {
	entryID, err := s.cron.AddFunc(expression, func() {
		if err := s.TriggerSchedule(ctx, name, map[string]any{"source": "cron"}); err != nil {
			s.logger.Error("Scheduled firing failed", "schedule", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to arm cron entry for schedule %q: %w", name, err)
	}

	s.entries[name] = entryID

	return nil
}
