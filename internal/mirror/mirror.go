// Package mirror copies imported transactions to the analytics warehouse.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
	infra "github.com/dvloznov/finance-admin/internal/infra/bigquery"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/logger"
)

// TransactionSource loads transactions from the primary store.
type TransactionSource interface {
	GetTransactionsByReferences(ctx context.Context, references []string) ([]*domain.Transaction, error)
}

// Warehouse is the analytics side of the mirror.
type Warehouse interface {
	ExistingReferences(ctx context.Context, references []string) (map[string]bool, error)
	InsertTransactions(ctx context.Context, rows []*infra.TransactionRow) error
}

// Handler processes MirrorTransactionsJob values.
type Handler struct {
	source    TransactionSource
	warehouse Warehouse
	now       func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(source TransactionSource, warehouse Warehouse) *Handler {
	return &Handler{source: source, warehouse: warehouse, now: time.Now}
}

// Handle implements jobs.JobHandler. References already in the warehouse are
// skipped so a retried job never writes a row twice; references deleted from
// the store since the import are ignored.
func (h *Handler) Handle(ctx context.Context, job jobs.Job) error {
	mj, ok := job.(*jobs.MirrorTransactionsJob)
	if !ok {
		return fmt.Errorf("Handle: unexpected job type %s", job.GetType())
	}
	log := logger.FromContext(ctx)

	txs, err := h.source.GetTransactionsByReferences(ctx, mj.References)
	if err != nil {
		return fmt.Errorf("Handle: loading transactions: %w", err)
	}

	existing, err := h.warehouse.ExistingReferences(ctx, mj.References)
	if err != nil {
		return fmt.Errorf("Handle: querying warehouse: %w", err)
	}

	now := h.now()
	rows := make([]*infra.TransactionRow, 0, len(txs))
	for _, t := range txs {
		if existing[t.Reference] {
			continue
		}
		rows = append(rows, infra.NewTransactionRow(t, mj.ImportID, now))
	}

	if err := h.warehouse.InsertTransactions(ctx, rows); err != nil {
		return fmt.Errorf("Handle: inserting rows: %w", err)
	}

	log.Debug().
		Int("requested", len(mj.References)).
		Int("found", len(txs)).
		Int("inserted", len(rows)).
		Msg("mirrored transactions")
	return nil
}
