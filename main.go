package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/obsidiansec/personaforge/cmd"
)

// main is the module-root entry point. It mirrors cmd/personaforge so a plain
// `go run .` at the root behaves identically to the installed binary.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
