package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"hark/apps/backend/internal/config"
)

func TestLoadConfig(t *testing.T) {
	// Set env var directly to test envconfig logic
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	// Create a temp .env file
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "hark", cfg.DBName)
	assert.Equal(t, 30, cfg.SchedulerIntervalSeconds)
	assert.Equal(t, 900, cfg.LockTTLSeconds)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_API", "false")
	os.Setenv("ENABLE_SCHEDULER", "false")
	os.Setenv("WORKER_CONCURRENCY", "10")
	os.Setenv("REDIS_ADDR", "redis:6379")
	defer os.Unsetenv("ENABLE_API")
	defer os.Unsetenv("ENABLE_SCHEDULER")
	defer os.Unsetenv("WORKER_CONCURRENCY")
	defer os.Unsetenv("REDIS_ADDR")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.False(t, cfg.EnableScheduler)
	assert.True(t, cfg.EnableWorker)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestConfig_DSN(t *testing.T) {
	cfg := config.Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPass: "p", DBName: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
