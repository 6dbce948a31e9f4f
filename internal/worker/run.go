package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"renderhub/internal/pkg/logger"
)

// Run starts Concurrency consumers and one promoter and blocks until ctx is
// canceled.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = 5 * time.Second
	}
	if d.PromoteInterval <= 0 {
		d.PromoteInterval = time.Second
	}
	if d.PromoteBatch <= 0 {
		d.PromoteBatch = 100
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.Concurrency; i++ {
		wlog := log.WithFields(map[string]any{"worker": i})
		g.Go(func() error {
			consume(gctx, d, wlog)
			return nil
		})
	}
	g.Go(func() error {
		promote(gctx, d, log)
		return nil
	})

	log.Info("worker started", "concurrency", d.Concurrency)
	err := g.Wait()
	log.Info("worker stopped")
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func consume(ctx context.Context, d Deps, log *logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			sleep(ctx, time.Second)
			continue
		}
		if payload == nil {
			continue
		}

		var job Job
		if err := json.Unmarshal(payload, &job); err != nil {
			log.WithError(err).Error("dropping undecodable job", "payload_bytes", len(payload))
			continue
		}

		handle(ctx, d, log, job)
	}
}

// handle runs one job. A panic is logged with the job id and swallowed so the
// other consumers keep running.
func handle(ctx context.Context, d Deps, log *logger.Logger, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic handling job",
				"job_id", job.ID,
				"dedup_key", job.DedupKey(),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	jobCtx := logger.ContextWithJobID(ctx, job.ID)
	start := time.Now()
	res := d.Coordinator.Handle(jobCtx, job)
	log.Debug("job handled",
		"job_id", job.ID,
		"state", string(res.State),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func promote(ctx context.Context, d Deps, log *logger.Logger) {
	ticker := time.NewTicker(d.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Queue.Promote(ctx, time.Now(), d.PromoteBatch)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("promote delayed jobs failed", "error", err.Error())
				}
				continue
			}
			if n > 0 {
				log.Debug("promoted delayed jobs", "count", n)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
