package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidemark/normstore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
