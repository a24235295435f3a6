package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// amount travels as text both ways so NUMERIC precision is never squeezed
// through float64.
const transactionColumns = `reference, COALESCE(user_id, ''), amount::text, currency, message, occurred_at, created_at, updated_at`

// ListTransactions returns transactions matching filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("occurred_at < $%d", len(args)))
	}

	sql := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY occurred_at DESC, reference`

	txs, err := queryTransactions(ctx, r.pool, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// GetTransaction returns a transaction by reference.
func (r *Repository) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: reference}
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

// GetTransactionsByReferences returns the stored transactions among references.
func (r *Repository) GetTransactionsByReferences(ctx context.Context, references []string) ([]*domain.Transaction, error) {
	txs, err := getTransactionsByReferencesWithQuerier(ctx, r.pool, references, false)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionsByReferences: %w", err)
	}
	return txs, nil
}

func getTransactionsByReferencesWithQuerier(ctx context.Context, q Querier, references []string, forUpdate bool) ([]*domain.Transaction, error) {
	if len(references) == 0 {
		return []*domain.Transaction{}, nil
	}
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = ANY($1) ORDER BY reference`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return queryTransactions(ctx, q, sql, references)
}

// CreateTransaction inserts a single transaction.
func (r *Repository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	t.Timestamp = domain.NormalizeTimestamp(t.Timestamp)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (reference, user_id, amount, currency, message, occurred_at)
		VALUES ($1, NULLIF($2, ''), $3::numeric, $4, $5, $6)
		RETURNING created_at, updated_at
	`, t.Reference, t.UserID, t.Amount.String(), t.Currency, t.Message, t.Timestamp).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateTransaction: %w", mapError(err))
	}
	return nil
}

// UpdateTransaction applies patch to the stored transaction.
func (r *Repository) UpdateTransaction(ctx context.Context, reference string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	var updated *domain.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.NotFoundError{Kind: "transaction", ID: reference}
		}
		if err != nil {
			return err
		}
		patch.Apply(t)

		err = tx.QueryRow(ctx, `
			UPDATE transactions
			SET amount = $2::numeric, currency = $3, message = $4, occurred_at = $5, updated_at = now()
			WHERE reference = $1
			RETURNING updated_at
		`, t.Reference, t.Amount.String(), t.Currency, t.Message, t.Timestamp).Scan(&t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	return updated, nil
}

// DeleteTransaction removes a transaction by reference.
func (r *Repository) DeleteTransaction(ctx context.Context, reference string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "transaction", ID: reference}
	}
	return nil
}

// insertTransactionsInTx queues one INSERT per row in a single batch.
func insertTransactionsInTx(ctx context.Context, tx pgx.Tx, rows []*domain.Transaction) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range rows {
		batch.Queue(`
			INSERT INTO transactions (reference, user_id, amount, currency, message, occurred_at, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), $3::numeric, $4, $5, $6, $7, $7)
		`, t.Reference, t.UserID, t.Amount.String(), t.Currency, t.Message, t.Timestamp, t.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for _, t := range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting transaction %s: %w", t.Reference, mapError(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	return nil
}

func queryTransactions(ctx context.Context, q Querier, sql string, args ...any) ([]*domain.Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount string
	)
	if err := row.Scan(&t.Reference, &t.UserID, &amount, &t.Currency, &t.Message, &t.Timestamp, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q of %s: %w", amount, t.Reference, err)
	}
	t.Amount = d
	t.Timestamp = t.Timestamp.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
