// Package store defines the persistence contract shared by the Postgres and
// in-memory repositories.
package store

import (
	"context"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
)

// UserRepository handles user records.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (*domain.User, error)

	// DeleteUser removes the user according to policy and returns how many
	// transactions were removed with it.
	DeleteUser(ctx context.Context, userID string, policy domain.DeletePolicy) (int, error)
}

// TransactionRepository handles transaction records.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error)
	GetTransactionsByReferences(ctx context.Context, references []string) ([]*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateTransaction(ctx context.Context, reference string, patch domain.TransactionPatch) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, reference string) error
}

// ImportRepository applies archive imports atomically.
type ImportRepository interface {
	// ApplyImport upserts the user and inserts the new transactions as one
	// unit. Nothing is written when it returns an error.
	ApplyImport(ctx context.Context, batch *ImportBatch) (*ImportOutcome, error)
	ListImports(ctx context.Context, limit int) ([]*domain.Import, error)
}

// Repository is the full persistence surface used by the API.
type Repository interface {
	UserRepository
	TransactionRepository
	ImportRepository
	Close()
}

// ImportBatch is everything one archive contributes.
type ImportBatch struct {
	ImportID     string
	Source       string
	Checksum     string
	User         *domain.User
	Transactions []*domain.Transaction
	Policy       domain.DuplicatePolicy

	// AvatarKey is the stored avatar name, empty when the archive had none.
	AvatarKey string
	At        time.Time
}

// ImportOutcome reports what ApplyImport changed.
type ImportOutcome struct {
	UserCreated bool
	Created     []string // references written by this import
	Duplicates  []string // references already stored with identical content
}

// Classify splits incoming transactions against the stored rows with the same
// references. It returns the rows to insert and the duplicate references, or a
// ConflictError under the given policy.
func Classify(incoming []*domain.Transaction, existing map[string]*domain.Transaction, policy domain.DuplicatePolicy) ([]*domain.Transaction, []string, error) {
	var (
		fresh      []*domain.Transaction
		duplicates []string
		conflicts  []string
	)
	for _, tx := range incoming {
		stored, ok := existing[tx.Reference]
		switch {
		case !ok:
			fresh = append(fresh, tx)
		case policy == domain.DuplicateReject:
			conflicts = append(conflicts, tx.Reference)
		case stored.SameContent(tx):
			duplicates = append(duplicates, tx.Reference)
		default:
			conflicts = append(conflicts, tx.Reference)
		}
	}

	if len(conflicts) > 0 {
		msg := "references already exist with different content"
		if policy == domain.DuplicateReject {
			msg = "references already exist"
		}
		return nil, nil, &domain.ConflictError{Message: msg, References: conflicts}
	}
	return fresh, duplicates, nil
}

// MergeUser applies an import upsert onto the stored user: scalar fields are
// replaced, CreatedAt is kept and the stored avatar survives an avatar-less
// archive.
func MergeUser(stored, incoming *domain.User, avatarKey string, at time.Time) *domain.User {
	merged := *incoming
	merged.CreatedAt = at
	merged.Avatar = avatarKey
	if stored != nil {
		merged.CreatedAt = stored.CreatedAt
		if avatarKey == "" {
			merged.Avatar = stored.Avatar
		}
	}
	merged.UpdatedAt = at
	return &merged
}
