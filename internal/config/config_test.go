package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "renderhub/internal/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "renderhub", cfg.ServiceName)
	assert.Equal(t, 900*time.Second, cfg.Jobs.UniqueFor)
	assert.Equal(t, 60*time.Second, cfg.Jobs.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.RetryWindow)
	assert.Equal(t, 60*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 2, cfg.Jobs.ThrottleMaxFailures)
	assert.Equal(t, 3*time.Second, cfg.Jobs.ThrottleWindow)
	assert.Equal(t, time.Second, cfg.Jobs.ThrottleBackoff)
	assert.Equal(t, 365*24*time.Hour, cfg.Jobs.ThumbnailTTL)
	assert.Equal(t, 256, cfg.Preview.Size)
	assert.Equal(t, "postgres", cfg.LedgerDriver)
}

func TestLoadFromDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"RENDER_SERVER_URL=http://renderer:4949\n"+
			"JOB_RETRY_DELAY=30\n"+
			"THROTTLE_WINDOW=5s\n"+
			"LEDGER_DRIVER=memory\n"), 0o644))

	t.Setenv("RENDER_SERVER_URL", "")
	t.Setenv("JOB_RETRY_DELAY", "")
	t.Setenv("THROTTLE_WINDOW", "")
	t.Setenv("LEDGER_DRIVER", "")
	os.Unsetenv("RENDER_SERVER_URL")
	os.Unsetenv("JOB_RETRY_DELAY")
	os.Unsetenv("THROTTLE_WINDOW")
	os.Unsetenv("LEDGER_DRIVER")

	cfg, err := LoadFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "http://renderer:4949", cfg.Render.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Jobs.RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Jobs.ThrottleWindow)
	assert.Equal(t, "memory", cfg.LedgerDriver)
}

func TestEnvironmentWinsOverDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WORKER_CONCURRENCY=8\n"), 0o644))
	t.Setenv("WORKER_CONCURRENCY", "2")

	cfg, err := LoadFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Jobs.Concurrency)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WORKER_CONCURRENCY", "many"},
		{"WORKER_CONCURRENCY", "0"},
		{"JOB_RETRY_WINDOW", "soon"},
		{"LEDGER_DRIVER", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadFiles()
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
			assert.Equal(t, tt.key, apperr.GetFields(err)["field"])
		})
	}
}

func TestRequire(t *testing.T) {
	cfg := &Config{RedisAddr: "127.0.0.1:6379"}

	assert.NoError(t, cfg.Require("REDIS_ADDR"))

	err := cfg.Require("REDIS_ADDR", "DATABASE_URL")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeMissingConfig))
	assert.Equal(t, "DATABASE_URL", apperr.GetFields(err)["key"])
}

func TestValidateWorkerRejectsMemoryLedger(t *testing.T) {
	assert.NoError(t, (&Config{LedgerDriver: "postgres"}).ValidateWorker())

	err := (&Config{LedgerDriver: "memory"}).ValidateWorker()
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Equal(t, "LEDGER_DRIVER", apperr.GetFields(err)["field"])
}

func TestCSVEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a , ,http://b")
	assert.Equal(t, []string{"http://a", "http://b"}, CSVEnv("CORS_ALLOWED_ORIGINS", nil))

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	assert.Equal(t, []string{"x"}, CSVEnv("CORS_ALLOWED_ORIGINS", []string{"x"}))
}
