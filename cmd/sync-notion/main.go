package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/infra/postgres"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse CLI flags; the environment provides the defaults
	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (optional)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format, inclusive (optional)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID env)")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "PostgreSQL URL (or set DATABASE_URL env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	prune := flag.Bool("prune", false, "Archive Notion pages whose transaction no longer exists")
	flag.Parse()

	// Validate required flags
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}
	if *databaseURL == "" {
		log.Fatal().Msg("Error: --database-url is required")
	}

	var filter domain.TransactionFilter
	if *startDateStr != "" {
		filter.From, err = time.Parse("2006-01-02", *startDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
	}
	if *endDateStr != "" {
		endDate, err := time.Parse("2006-01-02", *endDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
		filter.To = endDate.AddDate(0, 0, 1)
	}

	// Validate date range
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		log.Fatal().
			Time("start_date", filter.From).
			Time("end_date", filter.To).
			Msg("Error: end-date must not be before start-date")
	}
	if *prune && (!filter.From.IsZero() || !filter.To.IsZero()) {
		log.Fatal().Msg("Error: --prune cannot be combined with a date range")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	pool, err := postgres.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	repo := postgres.NewRepository(pool)
	defer repo.Close()

	notionClient := notionsync.NewNotionClient(*notionToken)

	report, err := notionsync.SyncTransactions(ctx, repo, notionClient, *notionDBID, notionsync.Options{
		Filter: filter,
		DryRun: *dryRun,
		Prune:  *prune,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n",
		report.Created, report.Updated, report.Archived, report.Failed)
}
