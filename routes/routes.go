package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/firmauth/app"
	"github.com/upb/firmauth/internal/observability"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/services/ratelimit"
	"github.com/upb/firmauth/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	if deps.Config.RateLimit.TrustProxyHeaders {
		// Anonymous quotas key on the client address, so forwarded headers
		// are honored only behind a trusted proxy.
		r.Use(middleware.RealIP)
	}
	r.Use(observability.AccessLog(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if deps.Config.Observability.MetricsEnabled {
		r.Use(observability.HTTPMetrics)
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{
			"X-Request-ID", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-RateLimit-Tier",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle(deps.Config.Observability.MetricsPath, observability.Handler())
	}

	authMW := deps.AuthMiddleware
	limit := deps.RateLimitMiddleware.Limit
	h := deps.AuthHandler

	// API v1 routes
	r.Route("/api/v1/auth", func(r chi.Router) {
		// Public routes, limited per client address
		r.Group(func(r chi.Router) {
			r.Use(limit(ratelimit.ClassGeneral))
			r.Post("/login", h.HandleLogin)
			r.Post("/refresh", h.HandleRefresh)
		})

		// Authenticated routes, limited per firm
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Use(limit(ratelimit.ClassGeneral))

			r.Post("/logout", h.HandleLogout)
			r.Get("/me", h.HandleMe)
			r.Get("/permissions", h.HandlePermissions)
			r.Get("/rate-limits", h.HandleRateLimits)
			r.Get("/usage", h.HandleUsage)

			r.Route("/api-keys", func(r chi.Router) {
				r.Use(authMW.RequirePermissions(models.PermAPIAccess))
				r.Get("/", h.HandleListAPIKeys)
				r.Post("/", h.HandleCreateAPIKey)
				r.Delete("/{id}", h.HandleRevokeAPIKey)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
