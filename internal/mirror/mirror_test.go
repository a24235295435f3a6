package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
	infra "github.com/dvloznov/finance-admin/internal/infra/bigquery"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/shopspring/decimal"
)

// MockSource is a mock implementation of TransactionSource.
type MockSource struct {
	GetTransactionsByReferencesFunc func(ctx context.Context, references []string) ([]*domain.Transaction, error)
}

func (m *MockSource) GetTransactionsByReferences(ctx context.Context, references []string) ([]*domain.Transaction, error) {
	return m.GetTransactionsByReferencesFunc(ctx, references)
}

// MockWarehouse is a mock implementation of Warehouse.
type MockWarehouse struct {
	Existing map[string]bool
	Inserted []*infra.TransactionRow
	Err      error
}

func (m *MockWarehouse) ExistingReferences(ctx context.Context, references []string) (map[string]bool, error) {
	return m.Existing, nil
}

func (m *MockWarehouse) InsertTransactions(ctx context.Context, rows []*infra.TransactionRow) error {
	if m.Err != nil {
		return m.Err
	}
	m.Inserted = append(m.Inserted, rows...)
	return nil
}

func storedTxs(refs ...string) *MockSource {
	return &MockSource{GetTransactionsByReferencesFunc: func(ctx context.Context, references []string) ([]*domain.Transaction, error) {
		var out []*domain.Transaction
		for _, r := range refs {
			out = append(out, &domain.Transaction{
				Reference: r,
				UserID:    "u1",
				Amount:    decimal.NewFromInt(1),
				Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			})
		}
		return out, nil
	}}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name         string
		stored       []string
		existing     map[string]bool
		warehouseErr error
		wantInserted int
		wantErr      bool
	}{
		{name: "inserts all", stored: []string{"T1", "T2"}, wantInserted: 2},
		{name: "skips already mirrored", stored: []string{"T1", "T2"}, existing: map[string]bool{"T1": true}, wantInserted: 1},
		{name: "deleted rows ignored", stored: []string{"T2"}, wantInserted: 1},
		{name: "warehouse error retried", stored: []string{"T1"}, warehouseErr: errors.New("quota exceeded"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := &MockWarehouse{Existing: tt.existing, Err: tt.warehouseErr}
			h := NewHandler(storedTxs(tt.stored...), wh)

			err := h.Handle(context.Background(), &jobs.MirrorTransactionsJob{
				JobID:      "j1",
				ImportID:   "imp-1",
				References: []string{"T1", "T2"},
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(wh.Inserted) != tt.wantInserted {
				t.Errorf("inserted %d rows, want %d", len(wh.Inserted), tt.wantInserted)
			}
			for _, row := range wh.Inserted {
				if row.ImportID.StringVal != "imp-1" {
					t.Errorf("row %s has import id %q", row.Reference, row.ImportID.StringVal)
				}
			}
		})
	}
}
