package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/polyedge/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	cancel()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
