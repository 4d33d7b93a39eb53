package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

// NewRouter mounts every API route on a chi router.
func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/models", app.Models)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/webhooks", func(r chi.Router) {
		// callbacks arrive from a handful of provider IPs; never throttle them
		r.Post("/generation", app.WebhookGeneration)
		r.Post("/payment", app.WebhookPayment)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Route("/v1/generations", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/", app.GenerationsCreate)
			r.Get("/", app.GenerationsList)
			r.Get("/{id}", app.GenerationGet)
			r.Get("/{id}/thumbnail", app.GenerationThumbnail)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.CreditsGet)
			r.Post("/topups", app.TopUpsCreate)
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/generations/{id}/cancel-poll", app.AdminCancelPoll)
			r.Post("/credits/adjust", app.AdminAdjustCredits)
		})
	})

	return r
}
