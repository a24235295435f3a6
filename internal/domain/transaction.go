package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampPrecision is the finest timestamp resolution the stores keep.
// Postgres TIMESTAMPTZ holds microseconds.
const TimestampPrecision = time.Microsecond

// NormalizeTimestamp converts t to UTC at TimestampPrecision, so a value
// compares equal to itself after a round trip through any store.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// Transaction is the canonical (v1) financial event record, keyed by Reference.
type Transaction struct {
	Reference string          `json:"reference"`
	UserID    string          `json:"userId,omitempty"`
	Amount    decimal.Decimal `json:"amount"` // sign gives the direction
	Currency  string          `json:"currency,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// SameContent reports whether t and other describe the same event. Bookkeeping
// timestamps (CreatedAt, UpdatedAt) are ignored.
func (t *Transaction) SameContent(other *Transaction) bool {
	return t.Reference == other.Reference &&
		t.UserID == other.UserID &&
		t.Amount.Equal(other.Amount) &&
		t.Currency == other.Currency &&
		t.Message == other.Message &&
		t.Timestamp.Equal(other.Timestamp)
}

// TransactionPatch is a partial update of a transaction. Nil fields are left untouched.
type TransactionPatch struct {
	Amount    *decimal.Decimal `json:"amount"`
	Currency  *string          `json:"currency" validate:"omitempty,iso4217"`
	Message   *string          `json:"message" validate:"omitempty,max=1024"`
	Timestamp *time.Time       `json:"timestamp"`
}

// Apply copies the set fields of p onto t.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Currency != nil {
		t.Currency = *p.Currency
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Timestamp != nil {
		t.Timestamp = NormalizeTimestamp(*p.Timestamp)
	}
}

// TransactionFilter narrows transaction listings. Zero values mean "no constraint".
type TransactionFilter struct {
	UserID string
	From   time.Time
	To     time.Time
}

// Matches reports whether t passes the filter.
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && t.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Timestamp.Before(f.To) {
		return false
	}
	return true
}
