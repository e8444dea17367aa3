package handler

import (
	"log/slog"
	"net/http"

	"github.com/samims/tradenotify/internal/service"
)

type HealthHandler struct {
	service service.HealthService
	logger  *slog.Logger
}

func NewHealthHandler(svc service.HealthService, l *slog.Logger) *HealthHandler {
	return &HealthHandler{service: svc, logger: l.With("layer", "handler", "component", "healthHandler")}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Liveness(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readiness reports each dependency by name; any failure makes the whole check 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Readiness(r.Context())
	if err != nil {
		h.logger.Warn("Not ready", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
