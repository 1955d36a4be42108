package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"palmreader/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	MetricsPort string

	StoreDriver string
	DatabaseURL string
	AutoMigrate bool

	QueueDriver       string
	RedisAddr         string
	RedisPassword     string
	QueueName         string
	WorkerConcurrency int

	StorageDriver  string
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	CompletionProvider string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIOrg          string
	GeminiAPIKey       string
	GeminiModel        string

	RetryMaxRetries int
	RetryBaseDelay  time.Duration

	PalmTTL             time.Duration
	NumerologyTTL       time.Duration
	AstrologyTTL        time.Duration
	NoConsentTTL        time.Duration
	MockFallbackEnabled bool
	ForceMockReadings   bool

	ReadingRetention time.Duration
	SweepInterval    time.Duration
	StaleJobTimeout  time.Duration

	GeoIPDBPath        string
	CORSAllowedOrigins []string
	RateLimitPerHour   int
	MaxUploadBytes     int64
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
	QueueDriverMemory   = "memory"
	QueueDriverRedis    = "redis"
	StorageDriverFS     = "fs"
	StorageDriverMinio  = "minio"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "1919"),
		MetricsPort: getEnv("METRICS_PORT", "9464"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),

		QueueDriver:       strings.ToLower(getEnv("QUEUE_DRIVER", QueueDriverMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		QueueName:         getEnv("QUEUE_NAME", "readings:jobs"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "palm-uploads"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		CompletionProvider: strings.ToLower(getEnv("COMPLETION_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		RetryMaxRetries: getEnvInt("RETRY_MAX_RETRIES", 3),
		RetryBaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),

		PalmTTL:             time.Hour * time.Duration(getEnvInt("IMAGE_TTL_HOURS", 24)),
		NumerologyTTL:       24 * time.Hour * time.Duration(getEnvInt("NUMEROLOGY_TTL_DAYS", 30)),
		AstrologyTTL:        time.Hour * time.Duration(getEnvInt("ASTROLOGY_TTL_HOURS", 24)),
		NoConsentTTL:        time.Minute * time.Duration(getEnvInt("NO_CONSENT_TTL_MINUTES", 60)),
		MockFallbackEnabled: getEnvBool("MOCK_FALLBACK_ENABLED", true),
		ForceMockReadings:   getEnvBool("USE_MOCK_READINGS", false),

		ReadingRetention: 24 * time.Hour * time.Duration(getEnvInt("READING_RETENTION_DAYS", 30)),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		StaleJobTimeout:  getEnvDuration("STALE_JOB_TIMEOUT", 30*time.Minute),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 10),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.QueueDriver {
	case QueueDriverMemory, QueueDriverRedis:
	default:
		return fmt.Errorf("unsupported QUEUE_DRIVER %q", c.QueueDriver)
	}
	switch c.StorageDriver {
	case StorageDriverFS:
	case StorageDriverMinio:
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.CompletionProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.CompletionProvider)
	}
	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	if c.NoConsentTTL <= 0 {
		return fmt.Errorf("NO_CONSENT_TTL_MINUTES must be positive")
	}
	for name, ttl := range map[string]time.Duration{
		"IMAGE_TTL_HOURS":     c.PalmTTL,
		"NUMEROLOGY_TTL_DAYS": c.NumerologyTTL,
		"ASTROLOGY_TTL_HOURS": c.AstrologyTTL,
	} {
		if ttl <= c.NoConsentTTL {
			return fmt.Errorf("%s must be longer than NO_CONSENT_TTL_MINUTES", name)
		}
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
	return nil
}

// Retention returns the configured reading lifetimes.
func (c *Config) Retention() domain.Retention {
	return domain.Retention{
		Palm:       c.PalmTTL,
		Numerology: c.NumerologyTTL,
		Astrology:  c.AstrologyTTL,
		NoConsent:  c.NoConsentTTL,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
