package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StatsRepository lists everything the dashboard totals are computed from.
type StatsRepository interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
}

// StatsHandler serves dashboard totals.
type StatsHandler struct {
	repo StatsRepository
	log  zerolog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo StatsRepository, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{repo: repo, log: log}
}

// GetStats handles GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var (
		users []*domain.User
		txs   []*domain.Transaction
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		users, err = h.repo.ListUsers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = h.repo.ListTransactions(ctx, domain.TransactionFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		writeDomainError(w, h.log, err, "Failed to compute stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, domain.Summarize(users, txs))
}
