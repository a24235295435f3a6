package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/rs/zerolog"
)

// DefaultImportsLimit caps the audit listing when no ?limit= is given.
const DefaultImportsLimit = 50

// ImportsHandler serves the import audit trail.
type ImportsHandler struct {
	repo store.ImportRepository
	log  zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(repo store.ImportRepository, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{repo: repo, log: log}
}

// ListImports handles GET /api/imports
func (h *ImportsHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit := DefaultImportsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	imports, err := h.repo.ListImports(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to list imports")
		return
	}
	if imports == nil {
		imports = []*domain.Import{}
	}

	middleware.WriteJSON(w, http.StatusOK, imports)
}
