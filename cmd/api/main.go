package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-admin/internal/api"
	"github.com/dvloznov/finance-admin/internal/api/handlers"
	"github.com/dvloznov/finance-admin/internal/app"
	"github.com/dvloznov/finance-admin/internal/config"
	infraBQ "github.com/dvloznov/finance-admin/internal/infra/bigquery"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/jobs/inmemory"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/mirror"
	"github.com/dvloznov/finance-admin/internal/pipeline"
)

func main() {
	bootLog := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Command-line flags override the environment
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address (or set HTTP_ADDR env)")
	flag.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL URL, empty for in-memory (or set DATABASE_URL env)")
	flag.BoolVar(&cfg.AutoMigrate, "auto-migrate", cfg.AutoMigrate, "Apply pending migrations on startup (or set AUTO_MIGRATE env)")
	flag.Parse()

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid logging configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Initialize repositories
	repo, err := app.OpenStore(ctx, cfg, app.Hostname("api"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer repo.Close()

	avatars, err := app.OpenAvatarStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open avatar store")
	}
	defer avatars.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, inmemory.DefaultWorkers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var publisher pipeline.MirrorPublisher
	if cfg.BigQueryProject != "" {
		warehouse, err := infraBQ.NewBigQueryMirror(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
		}
		defer warehouse.Close()

		mirrorHandler := mirror.NewHandler(repo, warehouse)
		log.Info().
			Str("project", cfg.BigQueryProject).
			Str("dataset", cfg.BigQueryDataset).
			Msg("Starting mirror workers")
		if err := jobQueue.Start(workerCtx, mirrorHandler.Handle); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job workers")
		}
		publisher = jobQueue
	} else {
		log.Warn().Msg("BIGQUERY_PROJECT not set - warehouse mirror disabled")
	}

	importer := app.NewImporter(cfg, repo, avatars, publisher)

	// Initialize handlers
	router := api.NewRouter(api.Handlers{
		Users:        handlers.NewUsersHandler(repo, cfg.DeletePolicy(), log),
		Transactions: handlers.NewTransactionsHandler(repo, log),
		Upload:       handlers.NewUploadHandler(importer, cfg.UploadMaxArchiveBytes, log),
		Stats:        handlers.NewStatsHandler(repo, log),
		Imports:      handlers.NewImportsHandler(repo, log),
		Jobs:         handlers.NewJobsHandler(jobStore, log),
		Avatars:      handlers.NewAvatarsHandler(avatars, log),
	}, cfg.CORSAllowedOrigin, log)

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown: stop accepting uploads before draining mirror jobs
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue, wait for in-flight jobs and fail whatever is left
	abandoned, err := jobs.Drain(shutdownCtx, jobQueue, jobStore)
	if err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if abandoned > 0 {
		log.Warn().Int("jobs", abandoned).Msg("Mirror jobs abandoned, run the worker to backfill")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
