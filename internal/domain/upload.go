package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DuplicatePolicy decides how an import treats references that are already stored.
type DuplicatePolicy string

const (
	// DuplicateSkip reports identical existing rows as duplicates and rejects the
	// batch only when an existing row differs.
	DuplicateSkip DuplicatePolicy = "skip"
	// DuplicateReject rejects the batch when any reference already exists.
	DuplicateReject DuplicatePolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p DuplicatePolicy) Valid() bool {
	return p == DuplicateSkip || p == DuplicateReject
}

// UploadResult is the transient summary returned after a successful import.
type UploadResult struct {
	Message               string   `json:"message"`
	ImportID              string   `json:"importId"`
	UserProcessed         bool     `json:"userProcessed"`
	UserID                string   `json:"userId,omitempty"`
	UserCreated           bool     `json:"userCreated"`
	TransactionsProcessed int      `json:"transactionsProcessed"`
	TransactionsCreated   int      `json:"transactionsCreated"`
	DuplicateReferences   []string `json:"duplicateReferences,omitempty"`
	AvatarProcessed       bool     `json:"avatarProcessed"`
	Avatar                string   `json:"avatar,omitempty"`
}

// Import is the audit record written with every successful import.
type Import struct {
	ImportID            string    `json:"importId"`
	UserID              string    `json:"userId"`
	Source              string    `json:"source,omitempty"`
	ArchiveSHA256       string    `json:"archiveSha256"`
	TransactionsCreated int       `json:"transactionsCreated"`
	Duplicates          int       `json:"duplicates"`
	AvatarStored        bool      `json:"avatarStored"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Summary backs the dashboard totals.
type Summary struct {
	TotalUsers        int                        `json:"totalUsers"`
	TotalTransactions int                        `json:"totalTransactions"`
	TotalAmount       decimal.Decimal            `json:"totalAmount"`
	TotalsByCurrency  map[string]decimal.Decimal `json:"totalsByCurrency"`
}

// Summarize computes dashboard totals over the given records.
func Summarize(users []*User, txs []*Transaction) Summary {
	s := Summary{
		TotalUsers:        len(users),
		TotalTransactions: len(txs),
		TotalAmount:       decimal.Zero,
		TotalsByCurrency:  make(map[string]decimal.Decimal),
	}
	for _, t := range txs {
		s.TotalAmount = s.TotalAmount.Add(t.Amount)
		cur := t.Currency
		if cur == "" {
			cur = "UNKNOWN"
		}
		s.TotalsByCurrency[cur] = s.TotalsByCurrency[cur].Add(t.Amount)
	}
	return s
}
