package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions logged as one batch
	BatchSize = 100
)

// Options controls a sync run.
type Options struct {
	// Filter narrows the transactions that are mirrored.
	Filter domain.TransactionFilter

	// DryRun logs the changes without writing to Notion.
	DryRun bool

	// Prune archives pages whose reference no longer exists (or appears twice).
	// Only meaningful without a date filter, otherwise pages outside the range
	// would be archived too.
	Prune bool
}

// Report counts what a sync run did (or would do, in dry-run mode).
type Report struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncTransactions mirrors transactions to a Notion database, one page per
// reference. Existing pages are updated in place; individual page failures are
// logged and counted, not fatal.
func SyncTransactions(ctx context.Context, source TransactionSource, notionClient NotionService, notionDBID string, opts Options) (*Report, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Time("from", opts.Filter.From).
		Time("to", opts.Filter.To).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting transaction sync to Notion")

	transactions, err := source.ListTransactions(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: listing transactions: %w", err)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// First page per reference wins; later ones are duplicates.
	pageByReference := make(map[string]string, len(notionPages))
	var stale []stalePage
	for _, page := range notionPages {
		ref := extractReference(page)
		if _, dup := pageByReference[ref]; ref == "" || dup {
			stale = append(stale, stalePage{ID: string(page.ID), Reference: ref})
			continue
		}
		pageByReference[ref] = string(page.ID)
	}

	report := &Report{}

	for i := 0; i < len(transactions); i += BatchSize {
		end := i + BatchSize
		if end > len(transactions) {
			end = len(transactions)
		}

		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range transactions[i:end] {
			syncTransaction(ctx, notionClient, notionDBID, tx, pageByReference, opts.DryRun, report)
		}
	}

	if opts.Prune {
		current := make(map[string]bool, len(transactions))
		for _, tx := range transactions {
			current[tx.Reference] = true
		}
		for ref, pageID := range pageByReference {
			if !current[ref] {
				stale = append(stale, stalePage{ID: pageID, Reference: ref})
			}
		}
		for _, page := range stale {
			archivePage(ctx, notionClient, page, opts.DryRun, report)
		}
	}

	log.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("archived", report.Archived).
		Int("failed", report.Failed).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return report, nil
}

func syncTransaction(ctx context.Context, notionClient NotionService, notionDBID string, tx *domain.Transaction, pageByReference map[string]string, dryRun bool, report *Report) {
	log := logger.FromContext(ctx)
	pageID, exists := pageByReference[tx.Reference]

	if dryRun {
		if exists {
			log.Info().
				Str("reference", tx.Reference).
				Str("page_id", pageID).
				Msg("[DRY RUN] Would update existing Notion page")
			report.Updated++
		} else {
			log.Info().
				Str("reference", tx.Reference).
				Msg("[DRY RUN] Would create new Notion page")
			report.Created++
		}
		return
	}

	props := TransactionToNotionProperties(tx)

	if exists {
		if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
			log.Warn().
				Err(err).
				Str("reference", tx.Reference).
				Str("page_id", pageID).
				Msg("Failed to update Notion page")
			report.Failed++
			return
		}
		report.Updated++
		return
	}

	page, err := notionClient.CreatePage(ctx, notionDBID, props)
	if err != nil {
		log.Warn().
			Err(err).
			Str("reference", tx.Reference).
			Msg("Failed to create Notion page")
		report.Failed++
		return
	}
	log.Debug().
		Str("reference", tx.Reference).
		Str("page_id", string(page.ID)).
		Msg("Created Notion page")
	report.Created++
}

// stalePage is a Notion page without a current transaction behind it.
type stalePage struct {
	ID        string
	Reference string
}

func archivePage(ctx context.Context, notionClient NotionService, page stalePage, dryRun bool, report *Report) {
	log := logger.FromContext(ctx)
	ref := page.Reference

	if dryRun {
		log.Info().
			Str("reference", ref).
			Str("page_id", page.ID).
			Msg("[DRY RUN] Would archive stale Notion page")
		report.Archived++
		return
	}

	if err := notionClient.DeletePage(ctx, page.ID); err != nil {
		log.Warn().
			Err(err).
			Str("reference", ref).
			Str("page_id", page.ID).
			Msg("Failed to archive stale Notion page")
		report.Failed++
		return
	}
	log.Info().
		Str("reference", ref).
		Str("page_id", page.ID).
		Msg("Archived stale Notion page")
	report.Archived++
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
