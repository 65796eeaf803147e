package daemon

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// Scheduler wraps a gocron scheduler holding the single periodic run job.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobID     uuid.UUID
	interval  time.Duration
	hasJob    bool
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.NewError(errors.CategoryDaemon, "failed to create scheduler").WithCause(err).Build()
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler and waits for running jobs.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// SchedulePeriodic replaces the periodic job with one running task every
// interval. When immediate is set the first run starts right away.
// Overlapping executions are skipped and rescheduled.
func (s *Scheduler) SchedulePeriodic(interval time.Duration, immediate bool, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasJob {
		if err := s.scheduler.RemoveJob(s.jobID); err != nil {
			return errors.NewError(errors.CategoryDaemon, "failed to remove periodic job").WithCause(err).Build()
		}
		s.hasJob = false
	}

	opts := []gocron.JobOption{
		gocron.WithName("periodic-run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	job, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(task), opts...)
	if err != nil {
		return errors.NewError(errors.CategoryDaemon, "failed to create periodic job").
			WithCause(err).
			WithContext("interval", interval.String()).
			Build()
	}
	s.jobID = job.ID()
	s.interval = interval
	s.hasJob = true
	slog.Info("Scheduled periodic run", slog.Duration("interval", interval))
	return nil
}

// Interval returns the interval of the current job, or zero.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
