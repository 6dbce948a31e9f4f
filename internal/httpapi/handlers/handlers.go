package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderhub/internal/pkg/logger"
	"renderhub/internal/ports"
	"renderhub/internal/preview"
	"renderhub/internal/render"
	"renderhub/internal/thumbnail"
	"renderhub/internal/worker"
)

// Enqueuer is the part of the render coordinator the API needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, target render.Target, typ thumbnail.Type) (worker.EnqueueStatus, *worker.Job, error)
}

type Previewer interface {
	Run(ctx context.Context, in preview.Input) (*preview.Result, error)
}

// QueueStats reports ready and delayed job counts.
type QueueStats interface {
	Depth(ctx context.Context) (ready, delayed int64, err error)
}

type Deps struct {
	// Pool is nil when the ledger runs in memory.
	Pool  *pgxpool.Pool
	RDB   redis.UniversalClient
	SP    ports.StorageProvider
	Queue QueueStats

	Jobs    Enqueuer
	Ledger  thumbnail.Ledger
	Preview Previewer
	Log     *logger.Logger

	ServiceName    string
	MaxUploadBytes int64
}

type Handler struct {
	pool  *pgxpool.Pool
	rdb   redis.UniversalClient
	sp    ports.StorageProvider
	queue QueueStats

	jobs    Enqueuer
	ledger  thumbnail.Ledger
	preview Previewer
	log     *logger.Logger

	serviceName    string
	maxUploadBytes int64
}

func New(d Deps) *Handler {
	h := &Handler{
		pool:           d.Pool,
		rdb:            d.RDB,
		sp:             d.SP,
		queue:          d.Queue,
		jobs:           d.Jobs,
		ledger:         d.Ledger,
		preview:        d.Preview,
		log:            d.Log,
		serviceName:    d.ServiceName,
		maxUploadBytes: d.MaxUploadBytes,
	}
	if h.log == nil {
		h.log = logger.Discard()
	}
	if h.serviceName == "" {
		h.serviceName = "renderhub-api"
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 16 << 20
	}
	return h
}

// Log is the logger error responses are reported through.
func (h *Handler) Log() *logger.Logger { return h.log }
