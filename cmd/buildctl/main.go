package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/codex-k8s/buildctl/internal/cli"
	"github.com/codex-k8s/buildctl/internal/logging"
)

// main is the entry point for the buildctl CLI binary.
func main() {
	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:], logger)
	cancel()
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(cli.ExitCode(err))
	}
}
