package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/neoclaw-ai/geostream/internal/channels"
	"github.com/neoclaw-ai/geostream/internal/commands"
	"github.com/spf13/cobra"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the stream with an interactive control console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidated()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			listener := channels.NewCLI(cmd.InOrStdin(), cmd.OutOrStdout())
			listener.SetHistoryFile(cfg.HistoryPath())
			listener.SetCompletions(append(commands.Vocabulary, "quit"))

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(runCtx, listener)
		},
	}
}
