package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/studyplan/internal/logging"
	"github.com/dmitrijs2005/studyplan/internal/planner/cli"
	"github.com/dmitrijs2005/studyplan/internal/planner/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logging.NewDefault(slog.LevelInfo)

	app, err := cli.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "err", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error(ctx, "exited with error", "err", err)
		os.Exit(1)
	}
}
