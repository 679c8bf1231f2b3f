package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"voiceattend/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(config.Load())
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
