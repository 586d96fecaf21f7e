package handlers

import (
	"net/http"

	"github.com/pantrio/pantrio/internal/metrics"
)

type signupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

func (h *Handlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.authn.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// The public profile exists from the first moment the account does.
	if _, err := h.profiles.Ensure(r.Context(), account.UID, account.DisplayName, account.Email, ""); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.jwt.Generate(account)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.Signups.Inc()
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token, UID: account.UID})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.authn.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.jwt.Generate(account)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, UID: account.UID})
}

func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.actorProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
