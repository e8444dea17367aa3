package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samims/tradenotify/internal/handler"
	customMiddleware "github.com/samims/tradenotify/internal/middleware"
)

func NewRouter(audit *handler.AuditHandler, health *handler.HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/admin", func(r chi.Router) {
		r.Get("/events", audit.Events)
		r.Get("/events/{id}/notifications", audit.EventNotifications)
		r.Get("/notifications", audit.Notifications)
		r.Get("/notifications/stats", audit.Stats)
		r.Get("/notifications/{id}", audit.Notification)
	})

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
