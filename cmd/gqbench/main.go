package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordian-engine/gqbench/cmd/gqbench/internal/gqcmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := gqcmd.NewRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
