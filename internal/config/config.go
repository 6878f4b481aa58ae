package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects the blob backend of the document file store.
type StorageConfig struct {
	Driver    string // minio | gcs | memory
	GCSBucket string
}

// RedisConfig holds the shared redis connection used by the idempotency store and run lock.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// IdempotencyConfig controls key reservation.
type IdempotencyConfig struct {
	Driver       string // memory | redis
	TTL          time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// ProviderConfig holds the external billing provider settings.
type ProviderConfig struct {
	BaseURL         string
	APIKey          string
	Name            string
	Timeout         time.Duration
	RatePerSec      float64
	DownloadTimeout time.Duration
}

// WebhookConfig holds the shared secret used to verify provider callbacks.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

// SyncConfig controls the contingency sync job.
type SyncConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	LockTTL     time.Duration
}

// PubSubConfig enables publishing of document events to Google Pub/Sub.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	CredentialsJSON string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost          string
	Port             string
	LogLevel         string
	CompanyName      string
	RepositoryDriver string // postgres | memory
	Database         DatabaseConfig
	MinIO            MinIOConfig
	Storage          StorageConfig
	Redis            RedisConfig
	Idempotency      IdempotencyConfig
	Provider         ProviderConfig
	Webhook          WebhookConfig
	Sync             SyncConfig
	PubSub           PubSubConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		AppHost:          getEnv("APP_HOST", "localhost:8080"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CompanyName:      getEnv("COMPANY_NAME", ""),
		RepositoryDriver: strings.ToLower(getEnv("REPOSITORY_DRIVER", "postgres")),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
			GCSBucket: getEnv("GCS_BUCKET", ""),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Idempotency: IdempotencyConfig{
			Driver:       strings.ToLower(getEnv("IDEMPOTENCY_DRIVER", "memory")),
			TTL:          getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute),
			WaitTimeout:  getEnvDuration("IDEMPOTENCY_WAIT_TIMEOUT", 5*time.Second),
			PollInterval: getEnvDuration("IDEMPOTENCY_POLL_INTERVAL", 250*time.Millisecond),
		},
		Provider: ProviderConfig{
			BaseURL:         getEnv("PROVIDER_BASE_URL", ""),
			APIKey:          getEnv("PROVIDER_API_KEY", ""),
			Name:            getEnv("PROVIDER_NAME", "default"),
			Timeout:         getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
			RatePerSec:      getEnvFloat("PROVIDER_RATE_PER_SEC", 5),
			DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 15*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:    getEnv("WEBHOOK_SECRET", ""),
			Tolerance: getEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Sync: SyncConfig{
			Enabled:     getEnvBool("SYNC_ENABLED", false),
			Interval:    getEnvDuration("SYNC_INTERVAL", 30*time.Second),
			BatchSize:   getEnvInt("SYNC_BATCH_SIZE", 20),
			MaxAttempts: getEnvInt("SYNC_MAX_ATTEMPTS", 5),
			Backoff:     getEnvDuration("SYNC_BACKOFF", 30*time.Second),
			MaxBackoff:  getEnvDuration("SYNC_MAX_BACKOFF", 30*time.Minute),
			LockTTL:     getEnvDuration("SYNC_LOCK_TTL", 2*time.Minute),
		},
		PubSub: PubSubConfig{
			ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
			Topic:           getEnv("PUBSUB_TOPIC", "billing-documents"),
			CredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("250ms", "5m") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
