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
	"palmreader/internal/domain"
	"palmreader/internal/http/handlers"
	httpapi "palmreader/internal/http/httpapi"
	"palmreader/internal/infra"
	"palmreader/internal/infra/geoip"
	"palmreader/internal/middleware"
	"palmreader/internal/queue"
	"palmreader/internal/service"
)

const memoryQueueBuffer = 256

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")
	metrics := infra.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open stores")
	}
	defer deps.Close()

	group, gctx := errgroup.WithContext(ctx)

	// With the memory queue the API process also executes jobs and sweeps.
	var enqueuer domain.Enqueuer
	if cfg.QueueDriver == infra.QueueDriverMemory {
		exec, err := deps.Pipeline(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to build pipeline")
		}
		sweeper, err := deps.Sweeper()
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to build sweeper")
		}
		q := queue.NewMemoryQueue(memoryQueueBuffer, cfg.WorkerConcurrency, &logger)
		enqueuer = q
		group.Go(func() error { return q.Run(gctx, exec) })
		group.Go(func() error { return sweeper.Run(gctx, cfg.SweepInterval) })
	} else {
		q, err := deps.RedisQueue(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect queue")
		}
		enqueuer = q
	}

	var lookup middleware.CountryLookup
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("api: geoip database unavailable, origin country disabled")
		} else {
			defer resolver.Close()
			lookup = func(ip string) string { return geoip.Origin(resolver, ip) }
		}
	}

	readings, err := service.NewReadings(service.ReadingsOptions{
		Repo:      deps.Repo,
		Blobs:     deps.Blobs,
		Queue:     enqueuer,
		Retention: cfg.Retention(),
		Metrics:   metrics,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build readings service")
	}

	app := handlers.NewApp(readings, cfg.MaxUploadBytes, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:           logger,
		Metrics:          metrics,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimitPerHour: cfg.RateLimitPerHour,
		Country:          lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("queue", cfg.QueueDriver).Msg("api: listening")
		return server.Start()
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: stopped with error")
	}
	logger.Info().Msg("api: stopped")
}
