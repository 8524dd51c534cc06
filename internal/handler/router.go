package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/config"
	"github.com/zhouzirui/car-advisor/backend/internal/handler/api"
	"github.com/zhouzirui/car-advisor/backend/internal/handler/live"
	"github.com/zhouzirui/car-advisor/backend/internal/handler/page"
	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg config.Config, store *session.Store, svc *advisor.Service, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	apiHandler := api.New(svc, logger, cfg.Server.SecureCookies)
	limiter := middleware.NewLimiter(cfg.Chat.RateLimit, cfg.Chat.RateBurst, store)
	liveHandler := live.New(svc, logger, limiter, nil)
	pageHandler := page.New(svc, logger)
	limit := limiter.Middleware

	r.Get("/api/health", apiHandler.Health)

	r.Group(func(sr chi.Router) {
		sr.Use(middleware.Identity(store, cfg.Server.SecureCookies))

		sr.Route("/api", func(ar chi.Router) {
			apiHandler.RegisterRoutes(ar)
			liveHandler.RegisterRoutes(ar)

			ar.Group(func(pass chi.Router) {
				pass.Use(limit)
				apiHandler.RegisterPassRoutes(pass)
			})
		})

		sr.Group(func(web chi.Router) {
			web.Use(limit)
			pageHandler.RegisterRoutes(web)
		})
	})

	return r
}
