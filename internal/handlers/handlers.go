// Package handlers exposes the JSON REST API and the websocket live
// subscription endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pantrio/pantrio/internal/auth"
	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/middleware"
	"github.com/pantrio/pantrio/internal/models"
	"github.com/pantrio/pantrio/internal/service"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	store    docstore.Store
	groups   *service.GroupService
	pantry   *service.PantryService
	chat     *service.ChatService
	profiles *service.ProfileService
	authn    auth.Authenticator
	jwt      *auth.JWTManager
}

// New wires the handler set.
func New(
	store docstore.Store,
	groups *service.GroupService,
	pantry *service.PantryService,
	chat *service.ChatService,
	profiles *service.ProfileService,
	authn auth.Authenticator,
	jwt *auth.JWTManager,
) *Handlers {
	return &Handlers{
		store:    store,
		groups:   groups,
		pantry:   pantry,
		chat:     chat,
		profiles: profiles,
		authn:    authn,
		jwt:      jwt,
	}
}

// Routes builds the API mux. Everything except signup and login requires a
// Bearer token.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.Handle("GET /api/auth/me", h.protected(h.handleMe))

	mux.Handle("POST /api/groups", h.protected(h.handleCreateGroup))
	mux.Handle("GET /api/groups", h.protected(h.handleListGroups))
	mux.Handle("POST /api/groups/join", h.protected(h.handleJoinGroup))
	// The join screen shows the group name before any credentials exist.
	mux.Handle("GET /api/groups/preview", middleware.OptionalAuth(h.jwt, http.HandlerFunc(h.handlePreviewGroup)))
	mux.Handle("GET /api/groups/{id}", h.protected(h.handleGetGroup))
	mux.Handle("DELETE /api/groups/{id}", h.protected(h.handleDeleteGroup))
	mux.Handle("POST /api/groups/{id}/leave", h.protected(h.handleLeaveGroup))
	mux.Handle("DELETE /api/groups/{id}/members/{uid}", h.protected(h.handleRemoveMember))
	mux.Handle("PATCH /api/groups/{id}/name", h.protected(h.handleRenameGroup))
	mux.Handle("PATCH /api/groups/{id}/joinkey", h.protected(h.handleSetJoinKey))

	mux.Handle("POST /api/groups/{id}/pantry", h.protected(h.handleAddPantryItem))
	mux.Handle("POST /api/groups/{id}/pantry/defaults", h.protected(h.handleSeedPantry))
	mux.Handle("GET /api/groups/{id}/shopping-list", h.protected(h.handleShoppingList))
	mux.Handle("PATCH /api/groups/{id}/pantry/{key}", h.protected(h.handlePatchPantryItem))
	mux.Handle("POST /api/groups/{id}/pantry/{key}/dismiss", h.protected(h.handleDismissItem))
	mux.Handle("DELETE /api/groups/{id}/pantry/{key}", h.protected(h.handleRemovePantryItem))

	mux.Handle("GET /api/groups/{id}/chat", h.protected(h.handleChatHistory))
	mux.Handle("POST /api/groups/{id}/chat", h.protected(h.handlePostMessage))
	mux.Handle("POST /api/groups/{id}/chat/image", h.protected(h.handlePostImage))

	mux.Handle("GET /api/users/{uid}", h.protected(h.handleGetProfile))
	mux.Handle("PATCH /api/users/{uid}", h.protected(h.handleUpdateProfile))

	mux.Handle("GET /api/groups/ws", h.protected(h.handleGroupListSocket))
	mux.Handle("GET /api/groups/{id}/ws", h.protected(h.handleGroupSocket))

	// Writes sent with a session identifier echo back, flagged pending, to
	// the sockets that same session keeps open.
	return middleware.SessionOrigin(mux)
}

func (h *Handlers) protected(fn http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(h.jwt, fn)
}

// actorProfile resolves the signed-in user's profile, seeding it lazily if
// the document was never created.
func (h *Handlers) actorProfile(ctx context.Context) (*models.Profile, error) {
	uid := middleware.GetUserID(ctx)
	return h.profiles.Ensure(ctx, uid, "", middleware.GetEmail(ctx), "")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", service.ErrValidation)
	}
	return nil
}

// writeError maps the service error taxonomy onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, auth.ErrEmailExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrGroupDeleted):
		status = http.StatusGone
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}
