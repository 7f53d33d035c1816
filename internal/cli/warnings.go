package cli

import (
	"github.com/neoclaw-ai/geostream/internal/config"
	"github.com/neoclaw-ai/geostream/internal/logging"
)

// loadValidated loads config, fails on fatal problems, and logs warnings.
func loadValidated() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	report, err := config.ValidateStartup(cfg)
	if err != nil {
		return nil, err
	}
	for _, warning := range report.Warnings {
		logging.Logger().Warn(warning)
	}
	return cfg, nil
}
