package worker

import (
	"context"
	"time"

	"renderhub/internal/pkg/logger"
)

// Queue is the transport as seen by the worker pool.
type Queue interface {
	Transport
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Promote(ctx context.Context, now time.Time, limit int) (int, error)
}

type Deps struct {
	Queue       Queue
	Coordinator *Coordinator
	Log         *logger.Logger

	Concurrency     int
	PopTimeout      time.Duration
	PromoteInterval time.Duration
	// PromoteBatch caps how many due jobs one tick moves.
	PromoteBatch int
}
