package api

import (
	"net/http"

	"media-gateway/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP router. Middleware ordering matters:
// authentication and rate limiting see every request before any
// handler, and exempt paths are decided inside the gateway stages.
func NewRouter(h *Handler, gw *Gateway, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(gw.RequestLogger)
	r.Use(MetricsMiddleware)
	r.Use(gw.SecurityHeaders)
	r.Use(gw.CORS)
	r.Use(gw.RateLimit)
	r.Use(gw.IdentityContext)

	r.Get("/api/health", h.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", h.HandleCreateJob)
		r.Get("/", h.HandleListJobs)
		r.Get("/{id}", h.HandleGetJob)
		r.Post("/{id}/retry", h.HandleRetryJob)
	})

	r.Get("/api/limits", h.HandleGetLimits)

	r.Route("/api/admin/keys", func(r chi.Router) {
		r.Post("/", h.HandleCreateKey)
		r.Get("/", h.HandleListKeys)
		r.Get("/{id}", h.HandleGetKey)
		r.Patch("/{id}", h.HandleUpdateKey)
		r.Delete("/{id}", h.HandleDeleteKey)
	})

	return r
}
