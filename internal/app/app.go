// Package app wires config into the long-lived dependencies shared by the
// api and worker binaries.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderhub/internal/config"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/shutdown"
	"renderhub/internal/ports"
	"renderhub/internal/render"
	"renderhub/internal/repositories"
	"renderhub/internal/storage"
	"renderhub/internal/thumbnail"
	"renderhub/internal/worker"
	"renderhub/internal/worker/queue"
)

// Deps are the connected backends. Pool is nil with LEDGER_DRIVER=memory.
type Deps struct {
	Pool   *pgxpool.Pool
	RDB    *redis.Client
	Ledger thumbnail.Ledger
	Store  ports.StorageProvider
	Queue  *queue.RedisQueue
	Client *render.HTTPClient
}

func NewLogger(cfg *config.Config, service string) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddSource:   cfg.LogSource,
		ServiceName: service,
	})
}

// Connect opens every backend and registers its teardown with mgr.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger, mgr *shutdown.Manager) (*Deps, error) {
	d := &Deps{}

	if err := cfg.Require("REDIS_ADDR"); err != nil {
		return nil, err
	}
	log.Info("connecting to Redis", "addr", cfg.RedisAddr)
	d.RDB = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	mgr.Register("redis", func(ctx context.Context) error {
		return d.RDB.Close()
	})
	if err := d.RDB.Ping(ctx).Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.redis", "ping redis")
	}
	d.Queue = queue.NewRedisQueue(d.RDB, cfg.Jobs.QueueName)

	ledger, err := connectLedger(ctx, cfg, log, mgr, d)
	if err != nil {
		return nil, err
	}
	d.Ledger = ledger

	log.Info("initializing storage provider")
	d.Store, err = storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Info("storage provider initialized", "provider", d.Store.Provider())

	d.Client = render.NewHTTPClient(cfg.Render.ServerURL, cfg.Render.AccessKey, cfg.Render.Timeout)
	if !d.Client.Configured() {
		log.Warn("RENDER_SERVER_URL is not set; jobs will be abandoned and previews rejected")
	}
	return d, nil
}

func connectLedger(ctx context.Context, cfg *config.Config, log *logger.Logger, mgr *shutdown.Manager, d *Deps) (thumbnail.Ledger, error) {
	if cfg.LedgerDriver == "memory" {
		log.Warn("using in-memory thumbnail ledger; records are lost on restart")
		return thumbnail.NewMemoryLedger(), nil
	}

	if err := cfg.Require("DATABASE_URL"); err != nil {
		return nil, err
	}
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "connect postgres")
	}
	mgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "ping postgres")
	}
	d.Pool = pool

	repo := repositories.NewThumbnailRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected")
	return repo, nil
}

// Coordinator builds the render coordinator on the Redis lock, throttle and
// queue.
func (d *Deps) Coordinator(cfg *config.Config, log *logger.Logger) *worker.Coordinator {
	policy := worker.PolicyFromConfig(cfg.Jobs)
	return worker.NewCoordinator(worker.CoordinatorDeps{
		Transport: d.Queue,
		Locker:    worker.NewRedisLocker(d.RDB, ""),
		Throttle:  worker.NewRedisThrottle(d.RDB, "", policy.Throttle),
		Client:    d.Client,
		Ledger:    d.Ledger,
		Store:     d.Store,
		Policy:    policy,
		Log:       log,
	})
}

// WorkerDeps returns the pool settings for worker.Run.
func (d *Deps) WorkerDeps(cfg *config.Config, log *logger.Logger, coord *worker.Coordinator) worker.Deps {
	return worker.Deps{
		Queue:           d.Queue,
		Coordinator:     coord,
		Log:             log,
		Concurrency:     cfg.Jobs.Concurrency,
		PopTimeout:      cfg.Jobs.PopTimeout,
		PromoteInterval: cfg.Jobs.PromoteInterval,
	}
}
