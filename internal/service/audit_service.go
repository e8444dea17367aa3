package service

import (
	"context"
	"log/slog"
	"time"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// AuditService is the read-only view of the event log and the queue for admin tooling,
// plus the operator purge of old terminal rows
type AuditService interface {
	EventHistory(ctx context.Context, jobID string, limit int) ([]model.Event, error)
	SubjectHistory(ctx context.Context, subjectType, subjectID string, limit int) ([]model.Event, error)
	Notification(ctx context.Context, id string) (*model.QueueEntry, error)
	EventNotifications(ctx context.Context, eventID string) ([]model.QueueEntry, error)
	ListNotifications(ctx context.Context, status model.Status, limit int) ([]model.QueueEntry, error)
	QueueStats(ctx context.Context) (model.QueueStats, error)
	// RefreshQueueGauges publishes the current queue stats as prometheus gauges.
	RefreshQueueGauges(ctx context.Context) error
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error)
}

type auditService struct {
	events storage.EventStorage
	queue  storage.QueueStorage
	now    func() time.Time
	l      *slog.Logger
}

func NewAuditService(events storage.EventStorage, queue storage.QueueStorage, logger *slog.Logger) AuditService {
	return &auditService{
		events: events,
		queue:  queue,
		now:    time.Now,
		l:      logger.With("layer", "service", "component", "auditService"),
	}
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultListLimit, nil
	case limit < 0 || limit > MaxListLimit:
		return 0, appErr.NewInvalid("limit must be between 1 and %d", MaxListLimit)
	}
	return limit, nil
}

func (s *auditService) EventHistory(ctx context.Context, jobID string, limit int) ([]model.Event, error) {
	if jobID == "" {
		return nil, appErr.NewInvalid("job_id is required")
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.events.ListByJob(ctx, jobID, limit)
}

func (s *auditService) SubjectHistory(ctx context.Context, subjectType, subjectID string, limit int) ([]model.Event, error) {
	if subjectType == "" || subjectID == "" {
		return nil, appErr.NewInvalid("subject_type and subject_id are required")
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.events.ListBySubject(ctx, subjectType, subjectID, limit)
}

func (s *auditService) Notification(ctx context.Context, id string) (*model.QueueEntry, error) {
	return s.queue.Get(ctx, id)
}

func (s *auditService) EventNotifications(ctx context.Context, eventID string) ([]model.QueueEntry, error) {
	return s.queue.ListByEvent(ctx, eventID)
}

func (s *auditService) ListNotifications(ctx context.Context, status model.Status, limit int) ([]model.QueueEntry, error) {
	if !status.Valid() {
		return nil, appErr.NewInvalid("unknown status %q", status)
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.queue.ListByStatus(ctx, status, limit)
}

func (s *auditService) QueueStats(ctx context.Context) (model.QueueStats, error) {
	return s.queue.Stats(ctx)
}

func (s *auditService) RefreshQueueGauges(ctx context.Context) error {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.l.ErrorContext(ctx, "Failed to read queue stats", slog.Any("error", err))
		return err
	}
	for _, st := range []model.Status{
		model.StatusPending, model.StatusSent, model.StatusFailed, model.StatusSuppressed, model.StatusDeadLetter,
	} {
		metrics.QueueDepth.WithLabelValues(string(st)).Set(float64(stats.Counts[st]))
	}
	age := 0.0
	if stats.OldestPending != nil {
		age = s.now().Sub(*stats.OldestPending).Seconds()
	}
	metrics.QueueOldestPendingAge.Set(age)
	return nil
}

func (s *auditService) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, appErr.NewInvalid("purge age must be positive")
	}
	cutoff := s.now().Add(-olderThan)
	n, err := s.queue.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.l.InfoContext(ctx, "Purged terminal notifications", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return n, nil
}
