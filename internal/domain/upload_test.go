package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSummarize(t *testing.T) {
	users := []*User{{UserID: "u1"}, {UserID: "u2"}}
	txs := []*Transaction{
		{Reference: "T1", Amount: decimal.RequireFromString("12.50"), Currency: "USD"},
		{Reference: "T2", Amount: decimal.RequireFromString("-2.25"), Currency: "USD"},
		{Reference: "T3", Amount: decimal.RequireFromString("5"), Currency: "EUR"},
		{Reference: "T4", Amount: decimal.RequireFromString("1")},
	}

	s := Summarize(users, txs)

	if s.TotalUsers != 2 || s.TotalTransactions != 4 {
		t.Errorf("counts = %d/%d, want 2/4", s.TotalUsers, s.TotalTransactions)
	}
	if !s.TotalAmount.Equal(decimal.RequireFromString("16.25")) {
		t.Errorf("TotalAmount = %s, want 16.25", s.TotalAmount)
	}
	if !s.TotalsByCurrency["USD"].Equal(decimal.RequireFromString("10.25")) {
		t.Errorf("USD total = %s, want 10.25", s.TotalsByCurrency["USD"])
	}
	if !s.TotalsByCurrency["UNKNOWN"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("UNKNOWN total = %s, want 1", s.TotalsByCurrency["UNKNOWN"])
	}
}

func TestTransactionSameContent(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Transaction{Reference: "T1", UserID: "u1", Amount: decimal.RequireFromString("12.50"), Currency: "USD", Timestamp: ts}
	b := &Transaction{Reference: "T1", UserID: "u1", Amount: decimal.RequireFromString("12.5"), Currency: "USD", Timestamp: ts.In(time.FixedZone("x", 3600)), CreatedAt: time.Now()}

	if !a.SameContent(b) {
		t.Error("expected equal amounts and instants to compare as same content")
	}

	b.Message = "changed"
	if a.SameContent(b) {
		t.Error("expected differing message to break content equality")
	}
}

func TestTransactionFilter_Matches(t *testing.T) {
	tx := &Transaction{UserID: "u1", Timestamp: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}

	tests := []struct {
		name   string
		filter TransactionFilter
		want   bool
	}{
		{"empty filter", TransactionFilter{}, true},
		{"user match", TransactionFilter{UserID: "u1"}, true},
		{"user mismatch", TransactionFilter{UserID: "u2"}, false},
		{"inside range", TransactionFilter{From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}, true},
		{"before range", TransactionFilter{From: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)}, false},
		{"to is exclusive", TransactionFilter{To: tx.Timestamp}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tx); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
