// Package api serves the JSON surface of the advisor under /api.
package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
)

// Handler 提供 JSON API。
type Handler struct {
	advisor       *advisor.Service
	logger        *zap.Logger
	secureCookies bool
}

// New 创建 API 处理器。
func New(svc *advisor.Service, logger *zap.Logger, secureCookies bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{advisor: svc, logger: logger, secureCookies: secureCookies}
}

// RegisterRoutes registers routes that never start a reactive pass.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/form", h.handleForm)
}

// RegisterPassRoutes registers routes that run a reactive pass. The caller
// puts them behind the rate limiter.
func (h *Handler) RegisterPassRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session", h.handleGetSession)
	r.Post("/session/credential", h.handleCredential)
	r.Post("/predict", h.handlePredict)
	r.Post("/messages", h.handleMessage)
	r.Get("/stream", h.handleStream)
}
