package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mercadoleve/mercadoleve/cmd/ocrctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.NewJobsCLI).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ocrctl:", err)
		os.Exit(1)
	}
}
