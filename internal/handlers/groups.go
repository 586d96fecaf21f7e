package handlers

import (
	"net/http"

	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/middleware"
	"github.com/pantrio/pantrio/internal/service"
	"github.com/pantrio/pantrio/internal/session"
)

type createGroupRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type joinGroupRequest struct {
	JoinKey  string `json:"joinKey"`
	Password string `json:"password"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type joinKeyRequest struct {
	JoinKey string `json:"joinKey"`
}

// groupResponse pairs the password-free group view with the member list as
// currently snapshotted. Live overlays only exist on the websocket stream.
type groupResponse struct {
	Group   session.GroupView    `json:"group"`
	Members []session.MemberView `json:"members"`
}

func (h *Handlers) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor, err := h.actorProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := h.groups.Create(r.Context(), actor, req.Name, req.Password)
	if err != nil {
		metrics.GroupOps.WithLabelValues("create", metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}
	metrics.GroupOps.WithLabelValues("create", metrics.OutcomeOK).Inc()

	// New groups start stocked so the pantry page is never empty.
	if err := h.pantry.EnsureDefaults(r.Context(), g.ID, actor.UID); err == nil {
		g, _ = h.groups.Load(r.Context(), g.ID)
	}

	respondJSON(w, http.StatusCreated, groupResponse{
		Group:   session.ViewOf(g, actor.UID),
		Members: session.MemberViewsOf(g, nil),
	})
}

// groupPreview is the pre-join summary shown before credentials are entered.
type groupPreview struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Members  int    `json:"members"`
	IsMember bool   `json:"isMember"`
}

// handlePreviewGroup resolves a join key for anyone; a signed-in caller
// additionally learns whether they already belong.
func (h *Handlers) handlePreviewGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Resolve(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if g.Deleted() {
		writeError(w, service.ErrGroupDeleted)
		return
	}

	uid := middleware.GetUserID(r.Context()) // empty for anonymous visitors
	respondJSON(w, http.StatusOK, groupPreview{
		ID:       g.ID,
		Name:     g.Name,
		Members:  len(g.Users),
		IsMember: uid != "" && g.IsMember(uid),
	})
}

func (h *Handlers) handleListGroups(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	groups, err := h.groups.GroupsFor(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]session.GroupView, 0, len(groups))
	for i := range groups {
		views = append(views, session.ViewOf(&groups[i], uid))
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handlers) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	g, err := h.groups.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groupResponse{
		Group:   session.ViewOf(g, uid),
		Members: session.MemberViewsOf(g, nil),
	})
}

func (h *Handlers) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req joinGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor, err := h.actorProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := h.groups.Join(r.Context(), actor, req.JoinKey, req.Password)
	if err != nil {
		metrics.GroupOps.WithLabelValues("join", metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}
	metrics.GroupOps.WithLabelValues("join", metrics.OutcomeOK).Inc()
	respondJSON(w, http.StatusOK, groupResponse{
		Group:   session.ViewOf(g, actor.UID),
		Members: session.MemberViewsOf(g, nil),
	})
}

func (h *Handlers) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	if err := h.groups.Leave(r.Context(), r.PathValue("id"), uid); err != nil {
		metrics.GroupOps.WithLabelValues("leave", metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}
	metrics.GroupOps.WithLabelValues("leave", metrics.OutcomeOK).Inc()
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserID(r.Context())
	err := h.groups.RemoveMember(r.Context(), r.PathValue("id"), actor, r.PathValue("uid"))
	if err != nil {
		metrics.GroupOps.WithLabelValues("remove_member", metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}
	metrics.GroupOps.WithLabelValues("remove_member", metrics.OutcomeOK).Inc()
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	uid := middleware.GetUserID(r.Context())
	if err := h.groups.Rename(r.Context(), r.PathValue("id"), uid, req.Name); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleSetJoinKey(w http.ResponseWriter, r *http.Request) {
	var req joinKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	uid := middleware.GetUserID(r.Context())
	key, err := h.groups.SetJoinKey(r.Context(), r.PathValue("id"), uid, req.JoinKey)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"joinKey": key})
}

func (h *Handlers) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	if err := h.groups.Delete(r.Context(), r.PathValue("id"), uid); err != nil {
		metrics.GroupOps.WithLabelValues("delete", metrics.OutcomeError).Inc()
		writeError(w, err)
		return
	}
	metrics.GroupOps.WithLabelValues("delete", metrics.OutcomeOK).Inc()
	respondJSON(w, http.StatusNoContent, nil)
}
