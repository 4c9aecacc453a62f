package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		// the configured logger when the command got that far, stderr otherwise
		logger.Error("likesync failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
