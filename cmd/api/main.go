package main

import (
	"context"
	"net/http"
	"time"

	"renderhub/internal/app"
	"renderhub/internal/config"
	"renderhub/internal/httpapi"
	"renderhub/internal/httpapi/handlers"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/shutdown"
	"renderhub/internal/preview"
	"renderhub/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := app.NewLogger(cfg, cfg.ServiceName+"-api")
	log.Info("starting renderhub API", "addr", cfg.HTTPAddr)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	deps, err := app.Connect(ctx, cfg, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to initialize dependencies", err)
	}

	coord := deps.Coordinator(cfg, log)

	// A memory ledger is only visible inside this process, so the worker
	// pool has to run here too.
	if cfg.LedgerDriver == "memory" {
		workerCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := worker.Run(workerCtx, deps.WorkerDeps(cfg, log, coord)); err != nil {
				log.Error("embedded worker stopped", "error", err.Error())
			}
		}()
		shutdownMgr.Register("embedded-worker", func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Pool:   deps.Pool,
			RDB:    deps.RDB,
			SP:     deps.Store,
			Queue:  deps.Queue,
			Jobs:   coord,
			Ledger: deps.Ledger,
			Preview: preview.New(preview.Deps{
				Client: deps.Client,
				Store:  deps.Store,
				Log:    log,
				Size:   cfg.Preview.Size,
			}),
			Log:            log,
			ServiceName:    cfg.ServiceName + "-api",
			MaxUploadBytes: cfg.Preview.MaxUploadBytes,
		},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.Render.Timeout + 30*time.Second,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Render.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
