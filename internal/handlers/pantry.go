package handlers

import (
	"net/http"

	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/middleware"
)

type addItemRequest struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// patchItemRequest carries the optional knobs of one pantry item. Present
// fields are applied in declaration order; absent ones are left alone.
type patchItemRequest struct {
	Amount   *int    `json:"amount,omitempty"`
	Adjust   *int    `json:"adjust,omitempty"`
	Unit     *string `json:"unit,omitempty"`
	Baseline *int    `json:"baseline,omitempty"`
}

func (h *Handlers) handleAddPantryItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	uid := middleware.GetUserID(r.Context())
	key, err := h.pantry.AddOrMerge(r.Context(), r.PathValue("id"), uid, req.Name, req.Amount, req.Unit)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.PantryWrites.WithLabelValues("add").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (h *Handlers) handlePatchPantryItem(w http.ResponseWriter, r *http.Request) {
	var req patchItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	uid := middleware.GetUserID(ctx)
	groupID, key := r.PathValue("id"), r.PathValue("key")

	if req.Amount != nil {
		if err := h.pantry.SetAmount(ctx, groupID, uid, key, *req.Amount); err != nil {
			writeError(w, err)
			return
		}
		metrics.PantryWrites.WithLabelValues("amount").Inc()
	}
	if req.Adjust != nil {
		if err := h.pantry.Adjust(ctx, groupID, uid, key, *req.Adjust); err != nil {
			writeError(w, err)
			return
		}
		metrics.PantryWrites.WithLabelValues("adjust").Inc()
	}
	if req.Unit != nil {
		if err := h.pantry.SetUnit(ctx, groupID, uid, key, *req.Unit); err != nil {
			writeError(w, err)
			return
		}
		metrics.PantryWrites.WithLabelValues("unit").Inc()
	}
	if req.Baseline != nil {
		if err := h.pantry.SetBaseline(ctx, groupID, uid, key, *req.Baseline); err != nil {
			writeError(w, err)
			return
		}
		metrics.PantryWrites.WithLabelValues("baseline").Inc()
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleDismissItem(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	err := h.pantry.Dismiss(r.Context(), r.PathValue("id"), uid, r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.PantryWrites.WithLabelValues("dismiss").Inc()
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleRemovePantryItem(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	err := h.pantry.Remove(r.Context(), r.PathValue("id"), uid, r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.PantryWrites.WithLabelValues("remove").Inc()
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleSeedPantry(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	if err := h.pantry.EnsureDefaults(r.Context(), r.PathValue("id"), uid); err != nil {
		writeError(w, err)
		return
	}
	metrics.PantryWrites.WithLabelValues("seed_defaults").Inc()
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleShoppingList(w http.ResponseWriter, r *http.Request) {
	list, err := h.pantry.ShoppingList(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}
