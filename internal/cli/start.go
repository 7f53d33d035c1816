package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/store"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the stream headless until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidated()
			if err != nil {
				return err
			}

			logging.Logger().Info(
				"starting geostream",
				"host", cfg.Stream.Host,
				"locations", len(cfg.Filters.Locations),
				"autostart", cfg.Stream.Autostart,
				"home", cfg.HomeDir,
			)

			pidPath := cfg.PIDPath()
			if err := store.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
				return fmt.Errorf("write pid file %q: %w", pidPath, err)
			}
			defer os.Remove(pidPath)

			a, err := newApp(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(runCtx, nil)
		},
	}
}
