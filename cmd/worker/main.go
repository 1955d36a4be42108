package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"palmreader/internal/bootstrap"
	"palmreader/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")
	if cfg.QueueDriver != infra.QueueDriverRedis {
		logger.Fatal().Str("queue", cfg.QueueDriver).Msg("worker: QUEUE_DRIVER=redis is required, the api runs jobs itself otherwise")
	}
	metrics := infra.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open stores")
	}
	defer deps.Close()

	q, err := deps.RedisQueue(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect queue")
	}
	exec, err := deps.Pipeline(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}
	sweeper, err := deps.Sweeper()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build sweeper")
	}
	metricsServer := infra.NewMetricsServer(cfg, metrics)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return q.Run(gctx, exec) })
	group.Go(func() error { return sweeper.Run(gctx, cfg.SweepInterval) })
	group.Go(func() error {
		logger.Info().Str("addr", metricsServer.Addr()).Msg("worker: metrics listening")
		return metricsServer.Start()
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := group.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
