package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func TestCheckUser(t *testing.T) {
	tests := []struct {
		name    string
		user    *domain.User
		wantErr string
	}{
		{name: "valid", user: &domain.User{UserID: "u-1", FirstName: "Ada"}},
		{name: "missing id", user: &domain.User{FirstName: "Ada"}, wantErr: "userId is required"},
		{name: "slash in id", user: &domain.User{UserID: "a/b"}, wantErr: "userId must not contain"},
		{name: "long phone", user: &domain.User{UserID: "u-1", Phone: strings.Repeat("1", 33)}, wantErr: "phone must be at most 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUser(tt.user)
			checkValidation(t, err, tt.wantErr)
		})
	}
}

func TestCheckTransaction(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		tx      *domain.Transaction
		wantErr string
	}{
		{
			name: "valid",
			tx:   &domain.Transaction{Reference: "T1", Amount: decimal.NewFromInt(5), Currency: "EUR", Timestamp: ts},
		},
		{name: "no reference", tx: &domain.Transaction{Timestamp: ts}, wantErr: "reference is required"},
		{name: "no timestamp", tx: &domain.Transaction{Reference: "T1"}, wantErr: "timestamp is required"},
		{name: "bad currency", tx: &domain.Transaction{Reference: "T1", Currency: "EURO", Timestamp: ts}, wantErr: "ISO 4217"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransaction(tt.tx)
			checkValidation(t, err, tt.wantErr)
		})
	}
}

func TestCheckPatch(t *testing.T) {
	if err := CheckPatch(domain.TransactionPatch{Currency: strPtr("USD")}); err != nil {
		t.Errorf("valid patch: unexpected error %v", err)
	}

	err := CheckPatch(domain.UserPatch{FirstName: strPtr(strings.Repeat("x", 101))})
	checkValidation(t, err, "invalid update: firstName must be at most 100")
}

func checkValidation(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Error(), want) {
		t.Errorf("error %q does not contain %q", verr.Error(), want)
	}
}
