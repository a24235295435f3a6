package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/domain"
	infraBQ "github.com/dvloznov/finance-admin/internal/infra/bigquery"
	"github.com/dvloznov/finance-admin/internal/infra/postgres"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/jobs/inmemory"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/mirror"
)

// backfillBatch bounds the references carried by one mirror job.
const backfillBatch = 500

// The worker backfills the BigQuery mirror from Postgres. It is meant for
// first-time setup and for recovering from mirror jobs that exhausted their
// retries; the mirror handler skips references already in BigQuery.
func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	workers := flag.Int("workers", inmemory.DefaultWorkers, "Concurrent mirror workers")
	flag.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL URL (or set DATABASE_URL env)")
	flag.StringVar(&cfg.BigQueryProject, "project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT env)")
	flag.StringVar(&cfg.BigQueryDataset, "dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BIGQUERY_DATASET env)")
	flag.Parse()

	if cfg.DatabaseURL == "" || cfg.BigQueryProject == "" {
		log.Fatal().Msg("Usage: worker -database-url URL -project PROJECT [-dataset DATASET]")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	repo := postgres.NewRepository(pool)
	defer repo.Close()

	warehouse, err := infraBQ.NewBigQueryMirror(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
	}
	defer warehouse.Close()

	txs, err := repo.ListTransactions(ctx, domain.TransactionFilter{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	batches := backfillJobs(txs, backfillBatch)
	log.Info().
		Int("transactions", len(txs)).
		Int("jobs", len(batches)).
		Msg("Starting mirror backfill")

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(batches)+1, *workers, jobStore)

	if err := jobQueue.Start(ctx, mirror.NewHandler(repo, warehouse).Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	for _, job := range batches {
		if err := jobQueue.PublishMirrorTransactions(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish mirror job")
		}
	}

	completed, failed := waitForJobs(ctx, jobStore, len(batches))

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue; jobs an interrupt left behind count as failed
	abandoned, err := jobs.Drain(shutdownCtx, jobQueue, jobStore)
	if err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	failed += abandoned

	fmt.Printf("Backfill finished: %d job(s) completed, %d failed.\n", completed, failed)
	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// backfillJobs groups transactions per user into jobs of at most size references.
func backfillJobs(txs []*domain.Transaction, size int) []*jobs.MirrorTransactionsJob {
	byUser := make(map[string][]string)
	for _, tx := range txs {
		byUser[tx.UserID] = append(byUser[tx.UserID], tx.Reference)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var result []*jobs.MirrorTransactionsJob
	for _, u := range users {
		refs := byUser[u]
		sort.Strings(refs)
		for start := 0; start < len(refs); start += size {
			end := start + size
			if end > len(refs) {
				end = len(refs)
			}
			result = append(result, &jobs.MirrorTransactionsJob{
				ImportID:   "backfill",
				UserID:     u,
				References: refs[start:end],
			})
		}
	}
	return result
}

// waitForJobs polls the store until every job reached a terminal status or ctx ends.
func waitForJobs(ctx context.Context, store jobs.JobStore, total int) (completed, failed int) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		completed, failed = 0, 0
		list, err := store.ListJobs(ctx, jobs.JobFilter{})
		if err == nil {
			for _, j := range list {
				switch j.Status {
				case jobs.JobStatusCompleted:
					completed++
				case jobs.JobStatusFailed:
					failed++
				}
			}
		}
		if completed+failed >= total {
			return completed, failed
		}

		select {
		case <-ctx.Done():
			log.Warn().Int("completed", completed).Int("failed", failed).Msg("Backfill interrupted")
			return completed, failed
		case <-ticker.C:
		}
	}
}
