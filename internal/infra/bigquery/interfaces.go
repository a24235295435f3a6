package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultDataset is the dataset used when none is configured.
const DefaultDataset = "finance"

// BigQueryMirror writes mirrored transactions to BigQuery. It holds a shared
// BigQuery client to avoid creating a new connection for each operation.
type BigQueryMirror struct {
	client    *bigquery.Client
	datasetID string
}

// NewBigQueryMirror creates a client for projectID and makes sure the
// transactions table exists.
func NewBigQueryMirror(ctx context.Context, projectID, datasetID string) (*BigQueryMirror, error) {
	if datasetID == "" {
		datasetID = DefaultDataset
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryMirror: creating client: %w", err)
	}

	if err := EnsureTransactionsTableWithClient(ctx, client, datasetID); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewBigQueryMirror: %w", err)
	}

	return &BigQueryMirror{client: client, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (m *BigQueryMirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// ExistingReferences delegates to QueryExistingReferencesWithClient with the shared client.
func (m *BigQueryMirror) ExistingReferences(ctx context.Context, references []string) (map[string]bool, error) {
	return QueryExistingReferencesWithClient(ctx, m.client, m.datasetID, references)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (m *BigQueryMirror) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, m.client, m.datasetID, rows)
}
