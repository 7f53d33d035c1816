package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// Action is what a scheduled job does to the session.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Controller is the part of the session controller scheduled jobs drive.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Job is one cron entry.
type Job struct {
	Action Action
	Cron   string
}

// Runner executes job actions against the controller.
type Runner struct {
	ctrl Controller
}

// NewRunner creates a runner over ctrl.
func NewRunner(ctrl Controller) *Runner {
	return &Runner{ctrl: ctrl}
}

// Run executes one job action.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r == nil || r.ctrl == nil {
		return errors.New("scheduler controller is not configured")
	}
	switch job.Action {
	case ActionStart:
		return r.ctrl.Start(ctx)
	case ActionStop:
		return r.ctrl.Stop(ctx)
	default:
		return fmt.Errorf("unsupported action %q", job.Action)
	}
}
