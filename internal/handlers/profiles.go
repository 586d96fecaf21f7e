package handlers

import (
	"net/http"

	"github.com/pantrio/pantrio/internal/middleware"
	"github.com/pantrio/pantrio/internal/models"
)

func (h *Handlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.GetUserID(r.Context())
	p, err := h.profiles.Update(r.Context(), actor, r.PathValue("uid"), patch)
	if err != nil && p == nil {
		writeError(w, err)
		return
	}
	// A partial fan-out failure still returns the updated profile; stale
	// member snapshots heal on the next successful update.
	respondJSON(w, http.StatusOK, p)
}
