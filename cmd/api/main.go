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

	"github.com/harrisong/VideoStreaming-sub000/internal/api"
	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/logger"
	"github.com/harrisong/VideoStreaming-sub000/internal/repository"
	"github.com/harrisong/VideoStreaming-sub000/internal/service"
	"github.com/harrisong/VideoStreaming-sub000/internal/source/ytdlp"
	"github.com/harrisong/VideoStreaming-sub000/internal/storage"
	"github.com/harrisong/VideoStreaming-sub000/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	logCfg := logger.ConfigFromEnv()
	logCfg.ServiceName = "scraper-api"
	appLogger := logger.New(logCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer repository.Close(db)
	store := repository.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	extractor := ytdlp.New(&cfg.Extractor)
	jobService := service.NewJobService(store, extractor, cfg.Extractor.MaxSearchResults)
	// The adapter carries the configured credential bundle itself.
	ingestService := service.NewIngestService(store, extractor, objectStorage, &service.IngestConfig{
		WorkDir: cfg.Extractor.WorkDir,
	})

	pool := worker.NewPool(worker.Config{
		Workers:         cfg.Worker.Count,
		PollInterval:    cfg.Worker.PollInterval,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	}, store, ingestService)

	router := api.SetupRouter(&cfg.Server, jobService, store)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		pool.Start()
		<-gctx.Done()
		return pool.Stop()
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.WithError(err).Error("Shutdown finished with error")
		logger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Server exited")
}
