package api

import (
	"net/http"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

// handleCreateSession starts a fresh session and rebinds the caller to it.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	view := h.advisor.NewSession(r.Context())
	middleware.BindSession(w, view.SessionID, h.secureCookies)
	_ = utils.RespondJSON(w, http.StatusCreated, view)
}

// handleGetSession runs a pass with no user event so a pending follow-up gets
// another chance, then returns the session.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	out, err := h.advisor.Refresh(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		_ = utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	view, err := h.advisor.ConfigureCredential(r.Context(), middleware.SessionIDFromContext(r.Context()), payload.APIKey)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, view)
}

// Health reports liveness and whether predictions are available. It needs no session.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_ = utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"predictorReady": h.advisor.PredictorReady(),
	})
}
