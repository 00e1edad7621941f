package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinaeu/insights/backend/internal/handler/ai"
	"github.com/vinaeu/insights/backend/internal/handler/auth"
	middlewarePkg "github.com/vinaeu/insights/backend/internal/middleware"
	"github.com/vinaeu/insights/backend/internal/telemetry"
	"github.com/vinaeu/insights/backend/pkg/utils"
)

// Deps collects the services the router wires to routes.
type Deps struct {
	Auth         auth.Service
	Chat         ai.Service
	CookieSecure bool
	LoginLimiter *middlewarePkg.RateLimiter
	Metrics      *telemetry.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	if reg := deps.Metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	authHandler := auth.New(deps.Auth, deps.CookieSecure, deps.LoginLimiter)
	aiHandler := ai.New(deps.Chat)

	r.Route("/api", func(api chi.Router) {
		api.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"message": "Insights API v1.0",
				"status":  "healthy",
			})
		})

		authHandler.RegisterRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireUser(deps.Auth))
			aiHandler.RegisterRoutes(protected)
		})
	})

	return r
}
