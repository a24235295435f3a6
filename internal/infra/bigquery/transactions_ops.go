package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// EnsureTransactionsTableWithClient creates <dataset>.transactions, day
// partitioned on occurred_date, when it does not exist yet.
func EnsureTransactionsTableWithClient(ctx context.Context, client *bigquery.Client, datasetID string) error {
	table := client.Dataset(datasetID).Table(transactionsTable)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("EnsureTransactionsTable: reading metadata: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema: transactionsSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "occurred_date",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"user_id"}},
	}
	if err := table.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("EnsureTransactionsTable: creating table: %w", err)
	}
	return nil
}

// InsertTransactionsWithClient streams rows into <dataset>.transactions. The
// reference doubles as insert ID so BigQuery drops retried rows on its side.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		savers[i] = &bigquery.StructSaver{
			Schema:   transactionsSchema,
			InsertID: r.Reference,
			Struct:   r,
		}
	}

	inserter := client.Dataset(datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	return nil
}

// QueryExistingReferencesWithClient returns which of references are already
// mirrored.
func QueryExistingReferencesWithClient(ctx context.Context, client *bigquery.Client, datasetID string, references []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(references) == 0 {
		return existing, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT DISTINCT reference
		FROM `+"`%s.%s`"+`
		WHERE reference IN UNNEST(@references)
	`, datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "references", Value: references},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryExistingReferences: query read: %w", err)
	}

	for {
		var row struct {
			Reference string `bigquery:"reference"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryExistingReferences: iter next: %w", err)
		}
		existing[row.Reference] = true
	}

	return existing, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
