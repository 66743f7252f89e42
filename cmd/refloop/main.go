// Package main is the entry point for the refloop CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"refloop/pkg/controller"
)

// Exit codes.
const (
	exitError   = 1
	exitBacklog = 2 // the run stopped with refactor work left
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "refloop: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var be *controller.BacklogError
	if errors.As(err, &be) {
		return exitBacklog
	}
	return exitError
}
