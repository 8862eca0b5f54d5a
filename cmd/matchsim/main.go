// Command matchsim runs the online-dating market simulation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/talgya/matchsim/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		logging.Default().Error("matchsim failed", "error", err)
		stop()
		os.Exit(1)
	}
}
