// Package config loads renderhub settings from a .env file and the process
// environment into one explicit value handed to every component.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	apperr "renderhub/internal/pkg/errors"
)

type Config struct {
	ServiceName string
	LogLevel    string
	LogFormat   string
	LogSource   bool

	HTTPAddr           string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	DatabaseURL string
	RedisAddr   string
	// LedgerDriver is "postgres" or "memory".
	LedgerDriver string

	Render  Render
	Storage Storage
	Jobs    Jobs
	Preview Preview
}

type Render struct {
	// ServerURL may be empty. The job path abandons and the preview path
	// fails with MISSING_CONFIG when it is.
	ServerURL string
	AccessKey string
	Timeout   time.Duration
}

type Storage struct {
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

type Jobs struct {
	QueueName       string
	Concurrency     int
	PromoteInterval time.Duration
	PopTimeout      time.Duration

	UniqueFor    time.Duration
	RetryDelay   time.Duration
	RetryWindow  time.Duration
	ThumbnailTTL time.Duration

	ThrottleMaxFailures int
	ThrottleWindow      time.Duration
	ThrottleBackoff     time.Duration

	VerifyOutput bool
}

type Preview struct {
	Size           int
	MaxUploadBytes int64
}

// Load reads .env (if present, without overriding the environment) and then
// the environment.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.WrapWithCode(err, apperr.CodeValidation, "config.load", "invalid dotenv file").
				WithField("file", f)
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		ServiceName:        Env("SERVICE_NAME", "renderhub"),
		LogLevel:           Env("LOG_LEVEL", "info"),
		LogFormat:          Env("LOG_FORMAT", "json"),
		LogSource:          BoolEnv("LOG_SOURCE", false),
		HTTPAddr:           Env("HTTP_ADDR", "0.0.0.0:8080"),
		CORSAllowedOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		DatabaseURL:        Env("DATABASE_URL", ""),
		RedisAddr:          Env("REDIS_ADDR", "127.0.0.1:6379"),
		LedgerDriver:       Env("LEDGER_DRIVER", "postgres"),
		Render: Render{
			ServerURL: Env("RENDER_SERVER_URL", ""),
			AccessKey: Env("RENDER_ACCESS_KEY", ""),
		},
		Storage: Storage{
			Provider:           Env("STORAGE_PROVIDER", "localfs"),
			LocalRoot:          Env("STORAGE_LOCAL_ROOT", "/data"),
			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},
		Jobs: Jobs{
			QueueName:    Env("JOB_QUEUE_NAME", "renderhub:thumbnails"),
			VerifyOutput: BoolEnv("RENDER_VERIFY_OUTPUT", false),
		},
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 30 * time.Second},
		{"RENDER_TIMEOUT", &cfg.Render.Timeout, 60 * time.Second},
		{"JOB_PROMOTE_INTERVAL", &cfg.Jobs.PromoteInterval, 500 * time.Millisecond},
		{"JOB_POP_TIMEOUT", &cfg.Jobs.PopTimeout, 5 * time.Second},
		{"JOB_UNIQUE_FOR", &cfg.Jobs.UniqueFor, 900 * time.Second},
		{"JOB_RETRY_DELAY", &cfg.Jobs.RetryDelay, 60 * time.Second},
		{"JOB_RETRY_WINDOW", &cfg.Jobs.RetryWindow, 5 * time.Minute},
		{"THUMBNAIL_TTL", &cfg.Jobs.ThumbnailTTL, 365 * 24 * time.Hour},
		{"THROTTLE_WINDOW", &cfg.Jobs.ThrottleWindow, 3 * time.Second},
		{"THROTTLE_BACKOFF", &cfg.Jobs.ThrottleBackoff, 1 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = DurationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.Jobs.Concurrency, err = IntEnv("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.Jobs.ThrottleMaxFailures, err = IntEnv("THROTTLE_MAX_FAILURES", 2); err != nil {
		return nil, err
	}
	if cfg.Preview.Size, err = IntEnv("PREVIEW_SIZE", 256); err != nil {
		return nil, err
	}
	maxUpload, err := IntEnv("PREVIEW_MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	cfg.Preview.MaxUploadBytes = int64(maxUpload)

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.LedgerDriver {
	case "postgres", "memory":
	default:
		return apperr.ValidationField("LEDGER_DRIVER", "must be postgres or memory").WithField("value", c.LedgerDriver)
	}
	if c.Jobs.Concurrency < 1 {
		return apperr.ValidationField("WORKER_CONCURRENCY", "must be at least 1")
	}
	if c.Jobs.ThrottleMaxFailures < 1 {
		return apperr.ValidationField("THROTTLE_MAX_FAILURES", "must be at least 1")
	}
	if c.Preview.Size < 1 {
		return apperr.ValidationField("PREVIEW_SIZE", "must be positive")
	}
	return nil
}

// ValidateWorker rejects settings the standalone worker cannot honor. A
// memory ledger would only live inside the worker process, so nothing could
// read what it commits; that mode runs the pool inside the api binary.
func (c *Config) ValidateWorker() error {
	if c.LedgerDriver == "memory" {
		return apperr.ValidationField("LEDGER_DRIVER", "the worker binary needs the postgres ledger").
			WithField("value", c.LedgerDriver)
	}
	return nil
}

// Require returns a MISSING_CONFIG error for the first empty key. Binaries
// call it for the settings only they need, e.g. DATABASE_URL.
func (c *Config) Require(keys ...string) error {
	values := map[string]string{
		"DATABASE_URL":         c.DatabaseURL,
		"REDIS_ADDR":           c.RedisAddr,
		"RENDER_SERVER_URL":    c.Render.ServerURL,
		"STORAGE_LOCAL_ROOT":   c.Storage.LocalRoot,
		"GDRIVE_CLIENT_ID":     c.Storage.GDriveClientID,
		"GDRIVE_CLIENT_SECRET": c.Storage.GDriveClientSecret,
		"GDRIVE_REFRESH_TOKEN": c.Storage.GDriveRefreshToken,
	}
	for _, k := range keys {
		if values[k] == "" {
			return apperr.MissingConfig(k)
		}
	}
	return nil
}
