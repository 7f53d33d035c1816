// Package scheduler starts and stops the stream on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/robfig/cron/v3"
)

// Window is a pair of optional cron expressions opening and closing the stream.
type Window struct {
	Start string
	Stop  string
}

// Jobs returns the configured jobs in start, stop order.
func (w Window) Jobs() []Job {
	var jobs []Job
	if spec := strings.TrimSpace(w.Start); spec != "" {
		jobs = append(jobs, Job{Action: ActionStart, Cron: spec})
	}
	if spec := strings.TrimSpace(w.Stop); spec != "" {
		jobs = append(jobs, Job{Action: ActionStop, Cron: spec})
	}
	return jobs
}

// ValidateCron checks a standard five-field cron expression.
func ValidateCron(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Service runs the window jobs.
type Service struct {
	jobs    []Job
	runner  *Runner
	cron    *cron.Cron
	started bool
}

// NewService creates a cron-backed scheduler service.
func NewService(window Window, runner *Runner) *Service {
	return &Service{
		jobs:   window.Jobs(),
		runner: runner,
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Start registers the jobs and starts cron execution.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return errors.New("scheduler already started")
	}

	for _, job := range s.jobs {
		job := job
		_, err := s.cron.AddFunc(job.Cron, func() {
			if err := s.runner.Run(ctx, job); err != nil {
				logging.Logger().Warn("scheduled job failed", "action", job.Action, "cron", job.Cron, "err", err)
				return
			}
			logging.Logger().Info("scheduled job succeeded", "action", job.Action)
		})
		if err != nil {
			return fmt.Errorf("register cron job %q: %w", job.Action, err)
		}
	}

	s.cron.Start()
	s.started = true
	logging.Logger().Info("scheduler started", "jobs_registered", len(s.jobs))
	return nil
}

// Stop stops cron and waits for in-flight callbacks to finish or ctx cancellation.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}

	doneCtx := s.cron.Stop()
	s.started = false
	select {
	case <-doneCtx.Done():
		logging.Logger().Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
