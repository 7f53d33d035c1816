// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/neoclaw-ai/geostream/internal/bootstrap"
	"github.com/neoclaw-ai/geostream/internal/config"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/spf13/cobra"
)

// ErrFirstRun is returned after the starter config was written. Callers
// should exit cleanly so the user can edit it.
var ErrFirstRun = errors.New("first run setup complete")

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "geostream",
		Short: "Stream geo-filtered statuses to local outputs",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logging.SetLevel(slog.LevelInfo)
			} else {
				logging.SetLevel(slog.LevelWarn)
			}

			// config and version only read state and skip first-run onboarding.
			switch cmd.Name() {
			case "config", "version":
				return nil
			}

			home, err := config.HomeDir()
			if err != nil {
				return err
			}
			cfg := &config.Config{HomeDir: home}
			configPath := cfg.ConfigPath()
			firstRun := false
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				firstRun = true
			} else if err != nil {
				return fmt.Errorf("stat geostream config file %q: %w", configPath, err)
			}

			if err := bootstrap.Initialize(cfg); err != nil {
				return err
			}

			if firstRun {
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nEdit config file: %s\nRestart geostream.\n",
					configPath,
				); err != nil {
					return err
				}
				return ErrFirstRun
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to `geostream start` when no subcommand is provided.
			startCmd, _, err := cmd.Find([]string{"start"})
			if err != nil {
				return err
			}
			startCmd.SetContext(cmd.Context())
			return startCmd.RunE(startCmd, args)
		},
	}

	root.AddCommand(newConfigCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newConsoleCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")

	return root
}
