package cli

import (
	"github.com/neoclaw-ai/geostream/internal/config"
	"github.com/neoclaw-ai/geostream/internal/scheduler"
)

func newSchedulerService(cfg *config.Config, ctrl scheduler.Controller) *scheduler.Service {
	return scheduler.NewService(cfg.Schedule.Window(), scheduler.NewRunner(ctrl))
}
