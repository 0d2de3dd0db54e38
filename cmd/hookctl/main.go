package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"basegraph.app/hookrelay/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hookctl:", err)
		os.Exit(1)
	}
}
