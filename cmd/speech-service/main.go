// main package for the speech-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-service/internal/backend"
	"github.com/book-expert/speech-service/internal/bus"
	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/httpapi"
	"github.com/book-expert/speech-service/internal/jobstore"
	"github.com/book-expert/speech-service/internal/service"
	"github.com/book-expert/speech-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "speech-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve wires the pipeline together and blocks until shutdown.
func serve(cfg *config.Config, log *logger.Logger) error {
	jobBus, err := bus.Start(cfg.NATS)
	if err != nil {
		return fmt.Errorf("failed to start job bus: %w", err)
	}
	defer jobBus.Close()

	store := jobstore.New()
	contentCache := cache.New(cfg.Paths.CacheDir)
	synthBackend := selectBackend(cfg, log)

	log.System("Selected %s synthesis backend", synthBackend.Name())

	pool := worker.New(
		jobBus.Conn(),
		cfg.NATS.JobSubject,
		cfg.NATS.QueueGroup,
		cfg.NATS.Workers,
		store,
		synthBackend,
		contentCache,
		log,
	)

	svc := service.New(store, contentCache, jobBus.Conn(), cfg.NATS.JobSubject, log)
	api := httpapi.NewServer(svc, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan error, 1)

	go func() {
		poolDone <- pool.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		log.System("Listening on %s", cfg.HTTP.ListenAddr)

		listenErr := httpServer.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr

			return
		}

		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.System("Shutdown signal received")
	case listenErr := <-serveErr:
		stop()

		<-poolDone

		return fmt.Errorf("HTTP server failed: %w", listenErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Error("HTTP shutdown error: %v", shutdownErr)
	}

	<-poolDone

	return nil
}

// selectBackend picks the synthesis backend once, from configuration: cloud
// when a credential is present and offline is not forced, local otherwise.
func selectBackend(cfg *config.Config, log *logger.Logger) core.SynthesisBackend {
	if cfg.Cloud.Enabled() {
		return backend.NewCloud(cfg.Cloud, log)
	}

	return backend.NewLocal(cfg.Local, log)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
