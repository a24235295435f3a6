package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/pipeline"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/rs/zerolog"
)

// UsersHandler handles user endpoints.
type UsersHandler struct {
	repo   store.UserRepository
	policy domain.DeletePolicy
	log    zerolog.Logger
}

// NewUsersHandler creates a new users handler. policy applies to deletes that
// do not pass ?cascade=.
func NewUsersHandler(repo store.UserRepository, policy domain.DeletePolicy, log zerolog.Logger) *UsersHandler {
	if !policy.Valid() {
		policy = domain.DeleteCascade
	}
	return &UsersHandler{
		repo:   repo,
		policy: policy,
		log:    log,
	}
}

// ListUsers handles GET /api/users
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to list users")
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	middleware.WriteJSON(w, http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *UsersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := decodeBody(r, &user); err != nil {
		writeDomainError(w, h.log, err, "Failed to create user")
		return
	}
	if user.UserID == "" && (user.FirstName != "" || user.LastName != "") {
		user.UserID = pipeline.DeriveUserID(&user)
	}
	if err := pipeline.CheckUser(&user); err != nil {
		writeDomainError(w, h.log, err, "Failed to create user")
		return
	}

	// Avatars arrive only through archive imports.
	user.Avatar = ""

	if err := h.repo.CreateUser(r.Context(), &user); err != nil {
		writeDomainError(w, h.log, err, "Failed to create user")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("user_id", user.UserID).Msg("User created")
	middleware.WriteJSON(w, http.StatusCreated, &user)
}

// GetUser handles GET /api/users/:userId
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to get user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, user)
}

// UpdateUser handles PUT /api/users/:userId
func (h *UsersHandler) UpdateUser(w http.ResponseWriter, r *http.Request, userID string) {
	var patch domain.UserPatch
	if err := decodeBody(r, &patch); err != nil {
		writeDomainError(w, h.log, err, "Failed to update user")
		return
	}
	if err := pipeline.CheckPatch(patch); err != nil {
		writeDomainError(w, h.log, err, "Failed to update user")
		return
	}

	user, err := h.repo.UpdateUser(r.Context(), userID, patch)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to update user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/users/:userId
func (h *UsersHandler) DeleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	policy := h.policy
	if v := r.URL.Query().Get("cascade"); v != "" {
		cascade, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "cascade must be true or false")
			return
		}
		policy = domain.DeleteRestrict
		if cascade {
			policy = domain.DeleteCascade
		}
	}

	removed, err := h.repo.DeleteUser(r.Context(), userID, policy)
	if err != nil {
		writeDomainError(w, h.log, err, "Failed to delete user")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Str("user_id", userID).
		Str("policy", string(policy)).
		Int("transactions_removed", removed).
		Msg("User deleted")
	w.WriteHeader(http.StatusNoContent)
}
