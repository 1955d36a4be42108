// Package bootstrap wires configuration into the stores, queue, completion
// client and pipeline shared by the api, worker and cleanup binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"palmreader/internal/adapter/repo"
	"palmreader/internal/domain"
	"palmreader/internal/infra"
	"palmreader/internal/infra/credentials"
	"palmreader/internal/pipeline"
	"palmreader/internal/providers/completion"
	"palmreader/internal/providers/genai"
	"palmreader/internal/queue"
	"palmreader/internal/service"
	"palmreader/internal/storage"
)

// Deps holds the process-wide resources built from Config.
type Deps struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Metrics     *infra.Metrics
	Repo        domain.JobRepository
	Blobs       domain.BlobStore
	Credentials *credentials.Store

	pool  *pgxpool.Pool
	redis redis.UniversalClient
}

// Open connects the job store and blob store, applying migrations first when
// AUTO_MIGRATE is set.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, metrics *infra.Metrics) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger, Metrics: metrics}

	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		if cfg.AutoMigrate {
			if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		d.Repo = repo.NewJobRepository(runner)
		d.Credentials = credentials.NewStore(runner)
	default:
		logger.Warn().Msg("bootstrap: using in-memory job store, readings are lost on restart")
		d.Repo = repo.NewMemoryJobRepository()
		d.Credentials = credentials.NewStore(nil)
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Blobs = blobs
	return d, nil
}

func openBlobs(ctx context.Context, cfg *infra.Config) (domain.BlobStore, error) {
	if cfg.StorageDriver == infra.StorageDriverMinio {
		store, err := storage.NewMinioStore(
			storage.WithEndpoint(cfg.MinioEndpoint),
			storage.WithBucket(cfg.MinioBucket),
			storage.WithAccessKey(cfg.MinioAccessKey),
			storage.WithSecretKey(cfg.MinioSecretKey),
			storage.WithSSL(cfg.MinioUseSSL),
		)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path)
}

// Redis returns the shared Redis client, connecting on first use.
func (d *Deps) Redis(ctx context.Context) (redis.UniversalClient, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     d.Config.RedisAddr,
		Password: d.Config.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	d.redis = client
	return client, nil
}

// RedisQueue builds the shared job queue on the configured Redis list.
func (d *Deps) RedisQueue(ctx context.Context) (*queue.RedisQueue, error) {
	client, err := d.Redis(ctx)
	if err != nil {
		return nil, err
	}
	return queue.NewRedisQueue(client, queue.RedisOptions{
		Key:     d.Config.QueueName,
		Workers: d.Config.WorkerConcurrency,
		Logger:  &d.Logger,
	})
}

// Completer builds the configured provider client wrapped in the rate-limit
// retrier. It also returns the model name recorded in results.
func (d *Deps) Completer(ctx context.Context) (completion.Completer, string, error) {
	cfg := d.Config
	var (
		next  completion.Completer
		model string
	)
	switch cfg.CompletionProvider {
	case infra.ProviderGemini:
		client, err := genai.NewClient(ctx, genai.Options{
			APIKey:     d.providerKey(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey),
			Model:      cfg.GeminiModel,
			HTTPClient: &http.Client{Timeout: 90 * time.Second},
			Logger:     &d.Logger,
		})
		if err != nil {
			return nil, "", err
		}
		next, model = client, client.Model()
	default:
		client := completion.NewOpenAIClient(completion.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			OnWarning: func(reason, detail string) {
				d.Logger.Warn().Str("reason", reason).Str("detail", detail).Msg("completion: openai model normalized")
			},
		})
		next, model = client, client.Model()
	}
	retrier := completion.NewRetrier(next, completion.RetryOptions{
		MaxRetries: cfg.RetryMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		Logger:     &d.Logger,
		OnRetry:    func(int, time.Duration) { d.Metrics.Retry() },
	})
	return retrier, model, nil
}

// providerKey resolves the key once at startup for clients that bind it at
// construction time.
func (d *Deps) providerKey(ctx context.Context, provider, envKey string) string {
	key, err := d.Credentials.Resolve(ctx, provider, envKey)
	if err != nil {
		d.Logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: load stored api key")
	}
	return key
}

// Pipeline builds the job executor.
func (d *Deps) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	completer, model, err := d.Completer(ctx)
	if err != nil {
		return nil, err
	}
	cfg := d.Config
	provider, envKey := credentials.ProviderOpenAI, cfg.OpenAIAPIKey
	if cfg.CompletionProvider == infra.ProviderGemini {
		provider, envKey = credentials.ProviderGemini, cfg.GeminiAPIKey
	}
	return pipeline.New(pipeline.Options{
		Config: pipeline.Config{
			Model:               model,
			Retention:           cfg.Retention(),
			MockFallbackEnabled: cfg.MockFallbackEnabled,
			ForceMock:           cfg.ForceMockReadings,
		},
		Repo:      d.Repo,
		Blobs:     d.Blobs,
		Completer: completer,
		APIKey: func(ctx context.Context) (string, error) {
			return d.Credentials.Resolve(ctx, provider, envKey)
		},
		Metrics: d.Metrics,
		Logger:  &d.Logger,
	})
}

func (d *Deps) Sweeper() (*service.Sweeper, error) {
	return service.NewSweeper(service.SweeperOptions{
		Repo:       d.Repo,
		Blobs:      d.Blobs,
		MaxAge:     d.Config.ReadingRetention,
		StaleAfter: d.Config.StaleJobTimeout,
		Metrics:    d.Metrics,
		Logger:     &d.Logger,
	})
}

func (d *Deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
