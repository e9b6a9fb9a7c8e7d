package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/cmd"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
)

func main() {
	log := utils.GetLogger()
	defer utils.CleanupLogger()

	if err := config.LoadEnv(); err != nil {
		log.Debug("no .env file loaded", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal("command failed", zap.Error(err))
	}
}
