// Package sched runs the daily briefing job.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job generates and stores a briefing over the last days.
type Job func(ctx context.Context, days int) (string, error)

// Scheduler triggers the briefing job once a day.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	days   int
	logger *slog.Logger
}

// New creates a Scheduler that runs job daily at hour (local time),
// analyzing the last days of activity.
func New(hour, days int, job Job, logger *slog.Logger) (*Scheduler, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid briefing hour %d", hour)
	}
	if days <= 0 {
		days = 7
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:   cron.New(),
		job:    job,
		days:   days,
		logger: logger,
	}

	spec := fmt.Sprintf("0 %d * * *", hour)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("briefing scheduler started", "days", s.days)
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.job(ctx, s.days); err != nil {
		s.logger.Error("scheduled briefing failed", "error", err)
		return
	}
	s.logger.Info("scheduled briefing generated", "days", s.days)
}
