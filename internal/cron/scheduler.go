package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/chatbridge/internal/logger"
)

// cronParser is configured for standard 5-field cron expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is a named unit of housekeeping work
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs housekeeping jobs on cron schedules
type Scheduler struct {
	c    *cron.Cron
	jobs map[string]cron.EntryID
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		c:    cron.New(cron.WithParser(cronParser)),
		jobs: make(map[string]cron.EntryID),
	}
}

// Add registers a job; the schedule is validated up front
func (s *Scheduler) Add(job Job) error {
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	id, err := s.c.AddFunc(job.Schedule, func() { runJob(job) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule for %s: %w", job.Name, err)
	}

	s.jobs[job.Name] = id
	logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// NextRun reports when a registered job fires next
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	id, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return s.c.Entry(id).Next, true
}

// Start runs the scheduler until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.c.Start()
	go func() {
		<-ctx.Done()
		<-s.c.Stop().Done()
		logger.Debug("scheduler stopped")
	}()
}

func runJob(job Job) {
	start := time.Now()
	if err := job.Run(context.Background()); err != nil {
		logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// ComputeNextRun calculates the next run time from a cron schedule
func ComputeNextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}

	return sched.Next(from), nil
}
