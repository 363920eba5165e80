package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forestnode-io/knob/pkg/commands/root"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/log"
)

func main() {
	ctx := context.Background()
	ctx = events.WithEvents(ctx)

	status := events.ExitCodeGenericFailure
	defer func() {
		if r := recover(); r != nil {
			panic(r)
		}
		if ec := events.GetExitCode(ctx); -1 < ec {
			status = ec
		}
		os.Exit(status)
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	ctx, cleanup, err := log.Logging(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer cleanup()

	if err := root.ExecuteContext(ctx); err == nil {
		status = events.ExitCodeSuccess
	}
}
