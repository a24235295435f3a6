package pipeline

import (
	"context"

	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/store"
)

// ImportRepository is the slice of the store the pipeline writes through.
type ImportRepository interface {
	ApplyImport(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error)
}

// AvatarStore persists normalized avatar bytes.
type AvatarStore interface {
	Save(ctx context.Context, name string, data []byte) error
}

// MirrorPublisher enqueues follow-up work for a finished import.
type MirrorPublisher interface {
	PublishMirrorTransactions(ctx context.Context, job *jobs.MirrorTransactionsJob) error
}
