package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/pipeline"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/rs/zerolog"
)

// TransactionRepository is what the transactions endpoints need: transaction
// CRUD plus user lookups for the per-user listing.
type TransactionRepository interface {
	store.TransactionRepository
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo TransactionRepository
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo TransactionRepository, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDateRange(r)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to list transactions")
		return
	}
	h.list(w, r, filter)
}

// ListUserTransactions handles GET /api/transactions/user/:userId
func (h *TransactionsHandler) ListUserTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	if _, err := h.repo.GetUser(r.Context(), userID); err != nil {
		writeDomainError(w, h.log, err, "Failed to list transactions")
		return
	}

	filter, err := parseDateRange(r)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to list transactions")
		return
	}
	filter.UserID = userID
	h.list(w, r, filter)
}

func (h *TransactionsHandler) list(w http.ResponseWriter, r *http.Request, filter domain.TransactionFilter) {
	txs, err := h.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, txs)
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := decodeBody(r, &tx); err != nil {
		writeDomainError(w, h.log, err, "Failed to create transaction")
		return
	}
	if err := pipeline.CheckTransaction(&tx); err != nil {
		writeDomainError(w, h.log, err, "Failed to create transaction")
		return
	}

	tx.Timestamp = domain.NormalizeTimestamp(tx.Timestamp)

	if err := h.repo.CreateTransaction(r.Context(), &tx); err != nil {
		writeDomainError(w, h.log, err, "Failed to create transaction")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("reference", tx.Reference).Msg("Transaction created")
	middleware.WriteJSON(w, http.StatusCreated, &tx)
}

// GetTransaction handles GET /api/transactions/:reference
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, reference string) {
	tx, err := h.repo.GetTransaction(r.Context(), reference)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PUT /api/transactions/:reference
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, reference string) {
	var patch domain.TransactionPatch
	if err := decodeBody(r, &patch); err != nil {
		writeDomainError(w, h.log, err, "Failed to update transaction")
		return
	}
	if err := pipeline.CheckPatch(patch); err != nil {
		writeDomainError(w, h.log, err, "Failed to update transaction")
		return
	}

	tx, err := h.repo.UpdateTransaction(r.Context(), reference, patch)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/:reference
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, reference string) {
	if err := h.repo.DeleteTransaction(r.Context(), reference); err != nil {
		writeDomainError(w, h.log, err, "Failed to delete transaction")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("reference", reference).Msg("Transaction deleted")
	w.WriteHeader(http.StatusNoContent)
}

// parseDateRange reads the optional ?from= and ?to= bounds. Dates are
// YYYY-MM-DD (midnight UTC) or RFC 3339; to is exclusive.
func parseDateRange(r *http.Request) (domain.TransactionFilter, error) {
	var filter domain.TransactionFilter
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := parseQueryTime(v)
		if err != nil {
			return filter, &domain.ValidationError{Message: fmt.Sprintf("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", p.name)}
		}
		*p.dst = t
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return filter, &domain.ValidationError{Message: "from must be before to"}
	}
	return filter, nil
}

func parseQueryTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", v, time.UTC)
}
