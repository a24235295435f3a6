package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/jackc/pgx/v5"
)

// ApplyImport writes one archive in a single transaction. A transaction-scoped
// advisory lock keyed on the user id serializes concurrent imports of the same
// user; imports of different users proceed in parallel.
func (r *Repository) ApplyImport(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error) {
	outcome := &store.ImportOutcome{}
	if batch.At.IsZero() {
		batch.At = time.Now().UTC()
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, batch.User.UserID); err != nil {
			return fmt.Errorf("locking user %s: %w", batch.User.UserID, err)
		}

		refs := make([]string, len(batch.Transactions))
		for i, t := range batch.Transactions {
			refs[i] = t.Reference
		}
		stored, err := getTransactionsByReferencesWithQuerier(ctx, tx, refs, true)
		if err != nil {
			return fmt.Errorf("loading existing transactions: %w", err)
		}
		existing := make(map[string]*domain.Transaction, len(stored))
		for _, t := range stored {
			existing[t.Reference] = t
		}

		fresh, duplicates, err := store.Classify(batch.Transactions, existing, batch.Policy)
		if err != nil {
			return err
		}

		created, err := upsertUserWithQuerier(ctx, tx, batch.User, batch.AvatarKey, batch.At)
		if err != nil {
			return err
		}

		rows := make([]*domain.Transaction, len(fresh))
		for i, t := range fresh {
			row := *t
			row.CreatedAt, row.UpdatedAt = batch.At, batch.At
			rows[i] = &row
		}
		if err := insertTransactionsInTx(ctx, tx, rows); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO imports (import_id, user_id, source, archive_sha256, transactions_created, duplicates, avatar_stored, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, batch.ImportID, batch.User.UserID, batch.Source, batch.Checksum, len(rows), len(duplicates), batch.AvatarKey != "", batch.At)
		if err != nil {
			return fmt.Errorf("recording import: %w", err)
		}

		outcome.UserCreated = created
		outcome.Duplicates = duplicates
		for _, t := range rows {
			outcome.Created = append(outcome.Created, t.Reference)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ApplyImport: %w", err)
	}

	return outcome, nil
}

// ListImports returns the newest imports first, at most limit when limit > 0.
func (r *Repository) ListImports(ctx context.Context, limit int) ([]*domain.Import, error) {
	sql := `
		SELECT import_id::text, user_id, source, archive_sha256, transactions_created, duplicates, avatar_stored, created_at
		FROM imports
		ORDER BY created_at DESC, import_id
	`
	var args []any
	if limit > 0 {
		sql += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListImports: querying: %w", err)
	}
	defer rows.Close()

	imports := make([]*domain.Import, 0)
	for rows.Next() {
		var imp domain.Import
		if err := rows.Scan(&imp.ImportID, &imp.UserID, &imp.Source, &imp.ArchiveSHA256, &imp.TransactionsCreated, &imp.Duplicates, &imp.AvatarStored, &imp.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListImports: scanning: %w", err)
		}
		imp.CreatedAt = imp.CreatedAt.UTC()
		imports = append(imports, &imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListImports: iterating rows: %w", err)
	}
	return imports, nil
}
