package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"palmreader/internal/bootstrap"
	"palmreader/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "cleanup")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("cleanup: failed to open stores")
	}
	defer deps.Close()

	sweeper, err := deps.Sweeper()
	if err != nil {
		logger.Fatal().Err(err).Msg("cleanup: failed to build sweeper")
	}
	n, err := sweeper.RunOnce(ctx)
	if err != nil {
		logger.Fatal().Err(err).Int("deleted", n).Msg("cleanup: sweep failed")
	}
	logger.Info().Int("deleted", n).Msg("cleanup: done")
}
