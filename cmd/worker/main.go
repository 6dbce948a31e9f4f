package main

import (
	"context"

	"renderhub/internal/app"
	"renderhub/internal/config"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/shutdown"
	"renderhub/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := app.NewLogger(cfg, cfg.ServiceName+"-worker")
	if err := cfg.ValidateWorker(); err != nil {
		log.LogFatal("invalid worker configuration", err)
	}
	log.Info("starting renderhub worker",
		"queue", cfg.Jobs.QueueName,
		"concurrency", cfg.Jobs.Concurrency,
	)

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	deps, err := app.Connect(context.Background(), cfg, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to initialize dependencies", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// stopped ends the wait when the pool exits on its own.
	stopped, stop := context.WithCancel(context.Background())
	go func() {
		if err := worker.Run(ctx, deps.WorkerDeps(cfg, log, deps.Coordinator(cfg, log))); err != nil {
			log.Error("worker stopped with error", "error", err.Error())
		}
		close(done)
		stop()
	}()

	shutdownMgr.WaitWithContext(stopped)
}
