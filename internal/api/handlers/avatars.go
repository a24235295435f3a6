package handlers

import (
	"io"
	"net/http"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/rs/zerolog"
)

// AvatarsHandler serves stored avatars.
type AvatarsHandler struct {
	store avatar.Store
	log   zerolog.Logger
}

// NewAvatarsHandler creates a new avatars handler.
func NewAvatarsHandler(store avatar.Store, log zerolog.Logger) *AvatarsHandler {
	return &AvatarsHandler{store: store, log: log}
}

// GetAvatar handles GET /uploads/:name
func (h *AvatarsHandler) GetAvatar(w http.ResponseWriter, r *http.Request, name string) {
	if !avatar.ValidKey(name) {
		middleware.WriteError(w, http.StatusNotFound, "avatar not found")
		return
	}

	rc, err := h.store.Open(r.Context(), name)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to read avatar")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", avatar.ContentType)
	// Names are content hashes, so a stored avatar never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn().Err(err).Str("avatar", name).Msg("Failed to stream avatar")
	}
}
