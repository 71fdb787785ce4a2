package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"opgate/internal/cli"
	"opgate/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error.Sprint("✗")+" "+err.Error())
		stop()
		os.Exit(1)
	}
}
