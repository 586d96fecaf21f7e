package handlers

import (
	"net/http"
	"strconv"

	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/middleware"
)

type postMessageRequest struct {
	Text string `json:"text"`
}

type postImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (h *Handlers) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.chat.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	uid := middleware.GetUserID(r.Context())
	msg, err := h.chat.PostMessage(r.Context(), r.PathValue("id"), uid, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ChatMessages.Inc()
	respondJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) handlePostImage(w http.ResponseWriter, r *http.Request) {
	var req postImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	uid := middleware.GetUserID(r.Context())
	msg, err := h.chat.PostImage(r.Context(), r.PathValue("id"), uid, req.ImageURL)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ChatMessages.Inc()
	respondJSON(w, http.StatusCreated, msg)
}
