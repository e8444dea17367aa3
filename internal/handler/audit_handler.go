package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/service"
	"github.com/samims/tradenotify/pkg/tracing"
)

// AuditHandler serves the read-only admin views of the event log and the notification queue.
type AuditHandler struct {
	svc    service.AuditService
	logger *slog.Logger
}

func NewAuditHandler(s service.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{svc: s, logger: logger.With("layer", "handler", "component", "auditHandler")}
}

// Events lists events by job_id, or by subject_type and subject_id.
func (h *AuditHandler) Events(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("audit-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Events")
	defer span.End()

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.logger, "Events", err)
		return
	}
	q := r.URL.Query()

	var events []model.Event
	if subjectType := q.Get("subject_type"); subjectType != "" {
		events, err = h.svc.SubjectHistory(ctx, subjectType, q.Get("subject_id"), limit)
	} else {
		events, err = h.svc.EventHistory(ctx, q.Get("job_id"), limit)
	}
	if err != nil {
		tracer.RecordError(span, err)
		writeError(w, h.logger, "Events", err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AuditHandler) EventNotifications(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("audit-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "EventNotifications")
	defer span.End()

	rows, err := h.svc.EventNotifications(ctx, chi.URLParam(r, "id"))
	if err != nil {
		tracer.RecordError(span, err)
		writeError(w, h.logger, "EventNotifications", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Notifications lists queue rows in one status, dead_letter by default.
func (h *AuditHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("audit-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Notifications")
	defer span.End()

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.logger, "Notifications", err)
		return
	}
	status := model.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = model.StatusDeadLetter
	}
	rows, err := h.svc.ListNotifications(ctx, status, limit)
	if err != nil {
		tracer.RecordError(span, err)
		writeError(w, h.logger, "Notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *AuditHandler) Notification(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("audit-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Notification")
	defer span.End()

	id := chi.URLParam(r, "id")
	n, err := h.svc.Notification(ctx, id)
	if err != nil {
		if appErr.IsNotFound(err) {
			h.logger.Warn("Notification not found", slog.String("id", id))
		} else {
			tracer.RecordError(span, err)
		}
		writeError(w, h.logger, "Notification", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("audit-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Stats")
	defer span.End()

	stats, err := h.svc.QueueStats(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		writeError(w, h.logger, "Stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
