package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/obsidiansec/personaforge/cmd"
)

func main() {
	// Listen for interrupt signals so long-running commands shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
