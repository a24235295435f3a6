// Package inmemory provides a Repository kept entirely in process memory.
// It is used when no database is configured and in tests.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/store"
)

// Store is an in-memory implementation of store.Repository. A single mutex
// guards every map, so imports for the same user are serialized and each
// ApplyImport is all-or-nothing.
type Store struct {
	mu           sync.RWMutex
	users        map[string]*domain.User
	transactions map[string]*domain.Transaction
	imports      []*domain.Import
	now          func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]*domain.User),
		transactions: make(map[string]*domain.Transaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ListUsers returns all users ordered by last name, then first name.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, copyUser(u))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		if result[i].FirstName != result[j].FirstName {
			return result[i].FirstName < result[j].FirstName
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}
	return copyUser(u), nil
}

// CreateUser inserts a new user. CreatedAt/UpdatedAt are set on user.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UserID]; exists {
		return &domain.ConflictError{Message: "user already exists", References: []string{user.UserID}}
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.UserID] = copyUser(user)
	return nil
}

// UpdateUser applies patch to the stored user.
func (s *Store) UpdateUser(ctx context.Context, userID string, patch domain.UserPatch) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "user", ID: userID}
	}
	patch.Apply(u)
	u.UpdatedAt = s.now()
	return copyUser(u), nil
}

// DeleteUser removes a user and, under DeleteCascade, the user's transactions.
func (s *Store) DeleteUser(ctx context.Context, userID string, policy domain.DeletePolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return 0, &domain.NotFoundError{Kind: "user", ID: userID}
	}

	var owned []string
	for ref, tx := range s.transactions {
		if tx.UserID == userID {
			owned = append(owned, ref)
		}
	}
	if len(owned) > 0 && policy == domain.DeleteRestrict {
		sort.Strings(owned)
		return 0, &domain.ConflictError{Message: "user still has transactions", References: owned}
	}

	for _, ref := range owned {
		delete(s.transactions, ref)
	}
	delete(s.users, userID)
	return len(owned), nil
}

// ListTransactions returns transactions matching filter, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0)
	for _, tx := range s.transactions {
		if filter.Matches(tx) {
			result = append(result, copyTransaction(tx))
		}
	}
	sortTransactions(result)
	return result, nil
}

// GetTransaction returns a transaction by reference.
func (s *Store) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[reference]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: reference}
	}
	return copyTransaction(tx), nil
}

// GetTransactionsByReferences returns the stored transactions among references.
// Unknown references are ignored.
func (s *Store) GetTransactionsByReferences(ctx context.Context, references []string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(references))
	for _, ref := range references {
		if tx, ok := s.transactions[ref]; ok {
			result = append(result, copyTransaction(tx))
		}
	}
	return result, nil
}

// CreateTransaction inserts a single transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.Reference]; exists {
		return &domain.ConflictError{Message: "transaction already exists", References: []string{tx.Reference}}
	}
	if tx.UserID != "" {
		if _, ok := s.users[tx.UserID]; !ok {
			return &domain.ValidationError{Message: "unknown userId " + tx.UserID}
		}
	}
	now := s.now()
	tx.Timestamp = domain.NormalizeTimestamp(tx.Timestamp)
	tx.CreatedAt, tx.UpdatedAt = now, now
	s.transactions[tx.Reference] = copyTransaction(tx)
	return nil
}

// UpdateTransaction applies patch to the stored transaction.
func (s *Store) UpdateTransaction(ctx context.Context, reference string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[reference]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: reference}
	}
	patch.Apply(tx)
	tx.UpdatedAt = s.now()
	return copyTransaction(tx), nil
}

// DeleteTransaction removes a transaction by reference.
func (s *Store) DeleteTransaction(ctx context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[reference]; !ok {
		return &domain.NotFoundError{Kind: "transaction", ID: reference}
	}
	delete(s.transactions, reference)
	return nil
}

// ApplyImport implements store.ImportRepository.
func (s *Store) ApplyImport(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := batch.At
	if at.IsZero() {
		at = s.now()
	}

	existing := make(map[string]*domain.Transaction)
	for _, tx := range batch.Transactions {
		if stored, ok := s.transactions[tx.Reference]; ok {
			existing[tx.Reference] = stored
		}
	}
	fresh, duplicates, err := store.Classify(batch.Transactions, existing, batch.Policy)
	if err != nil {
		return nil, err
	}

	// Validation is done; from here on nothing can fail.
	stored, found := s.users[batch.User.UserID]
	s.users[batch.User.UserID] = mergeUser(stored, batch.User, batch.AvatarKey, at)

	outcome := &store.ImportOutcome{UserCreated: !found, Duplicates: duplicates}
	for _, tx := range fresh {
		row := copyTransaction(tx)
		row.CreatedAt, row.UpdatedAt = at, at
		s.transactions[row.Reference] = row
		outcome.Created = append(outcome.Created, row.Reference)
	}

	s.imports = append(s.imports, &domain.Import{
		ImportID:            batch.ImportID,
		UserID:              batch.User.UserID,
		Source:              batch.Source,
		ArchiveSHA256:       batch.Checksum,
		TransactionsCreated: len(outcome.Created),
		Duplicates:          len(outcome.Duplicates),
		AvatarStored:        batch.AvatarKey != "",
		CreatedAt:           at,
	})

	return outcome, nil
}

// ListImports returns the newest imports first, at most limit when limit > 0.
func (s *Store) ListImports(ctx context.Context, limit int) ([]*domain.Import, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Import, 0, len(s.imports))
	for i := len(s.imports) - 1; i >= 0; i-- {
		imp := *s.imports[i]
		result = append(result, &imp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Close is a no-op.
func (s *Store) Close() {}

func mergeUser(stored, incoming *domain.User, avatarKey string, at time.Time) *domain.User {
	return copyUser(store.MergeUser(stored, incoming, avatarKey, at))
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.Birthday != nil {
		b := *u.Birthday
		c.Birthday = &b
	}
	return &c
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}

func sortTransactions(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].Reference < txs[j].Reference
	})
}

// Ensure Store implements store.Repository.
var _ store.Repository = (*Store)(nil)
