// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs maintenance every five minutes.
const DefaultSweepSchedule = "@every 5m"

// jobTimeout bounds a single job run.
const jobTimeout = time.Minute

// Job is a named maintenance function run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	jobs   []Job
	cron   *cron.Cron
	logger *slog.Logger
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   jobs,
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger,
	}
}

// Start registers every job and starts the cron ticker. Jobs with an
// invalid schedule are logged and skipped.
func (s *Scheduler) Start() int {
	registered := 0
	for _, job := range s.jobs {
		_, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) })
		if err != nil {
			s.logger.Error("invalid cron schedule", "job", job.Name, "schedule", job.Schedule, "error", err)
			continue
		}
		registered++
		s.logger.Info("scheduled job", "job", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return registered
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// Stop stops the cron ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweeper removes expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Pruner drops expired entries from an in-process store.
type Pruner interface {
	Prune() int
}

// SweepJob returns the job that removes expired sessions and, when pruner
// is non-nil, expired in-process session memory.
func SweepJob(schedule string, sessions Sweeper, pruner Pruner, logger *slog.Logger) Job {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "session-sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := sessions.Sweep(ctx)
			if err != nil {
				return err
			}
			pruned := 0
			if pruner != nil {
				pruned = pruner.Prune()
			}
			if n > 0 || pruned > 0 {
				logger.Info("expired sessions swept", "sessions", n, "memory_keys", pruned)
			}
			return nil
		},
	}
}
