package api

import (
	"net/http"

	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/pkg/utils"
)

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		_ = utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	out, err := h.advisor.Message(r.Context(), middleware.SessionIDFromContext(r.Context()), payload.Content)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, out)
}
