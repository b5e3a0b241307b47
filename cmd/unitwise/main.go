// Package main is the entry point for the unitwise CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/havenly/unitwise/pkg/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
