// Package main is the entry point for the geostream binary.
// It delegates immediately to the CLI command tree.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/neoclaw-ai/geostream/internal/cli"
	"github.com/neoclaw-ai/geostream/internal/logging"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, cli.ErrFirstRun) {
			return
		}
		logging.Logger().Error("fatal error", "err", err)
		os.Exit(1)
	}
}
