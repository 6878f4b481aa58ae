package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("IDEMPOTENCY_DRIVER", "REDIS")
	t.Setenv("SYNC_MAX_ATTEMPTS", "7")
	t.Setenv("WEBHOOK_TOLERANCE", "90s")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "redis", cfg.Idempotency.Driver)
	assert.Equal(t, 7, cfg.Sync.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Webhook.Tolerance)
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"IDEMPOTENCY_TTL", "IDEMPOTENCY_WAIT_TIMEOUT", "IDEMPOTENCY_POLL_INTERVAL", "SYNC_BACKOFF", "SYNC_BATCH_SIZE", "STORAGE_DRIVER", "REPOSITORY_DRIVER"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.Idempotency.TTL)
	assert.Equal(t, 5*time.Second, cfg.Idempotency.WaitTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Idempotency.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.Backoff)
	assert.Equal(t, 20, cfg.Sync.BatchSize)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "postgres", cfg.RepositoryDriver)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "value")

	assert.Equal(t, "value", getEnv("TEST_ENV_VAR", "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	t.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	t.Setenv(key, "")
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	t.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	t.Setenv(key, "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration(key, time.Second))

	t.Setenv(key, "45")
	assert.Equal(t, 45*time.Second, getEnvDuration(key, time.Second))

	t.Setenv(key, "soon")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT_VAR", "2.5")
	assert.Equal(t, 2.5, getEnvFloat("TEST_FLOAT_VAR", 1))
	assert.Equal(t, 1.0, getEnvFloat("MISSING_FLOAT_VAR", 1))
}
