package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter-dispatch/internal/auth"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// RouterDeps collects what the HTTP surface needs.
type RouterDeps struct {
	// DB runs the single-statement admin queries outside a unit of work.
	DB        storage.DBTX
	Ready     pinger
	JWT       *auth.JWTService
	Publisher publisher
	Queue     deliveryStore
	Notifier  queue.Notifier
	Log       zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(RecoverMiddleware(d.Log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.JWTAuth(d.JWT))

		r.With(auth.RequireRole(auth.RolePublisher, auth.RoleAdmin)).
			Post("/newsletters", PublishNewsletterHandler(d.Publisher))

		// Delivery administration
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/newsletters/{id}/delivery", DeliveryStatusHandler(d.DB, d.Queue))
			r.Post("/newsletters/{id}/requeue", RequeueHandler(d.DB, d.Queue, d.Notifier))
		})
	})

	return r
}
