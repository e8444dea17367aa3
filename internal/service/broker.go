package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/pkg/tracing"
)

const systemMessageSavepoint = "tradenotify_system_message"

// EmitRequest is the envelope of one domain event. Payload carries the typed, event specific fields.
type EmitRequest struct {
	ActorID     string
	ActorRole   string
	SubjectType string
	SubjectID   string
	JobID       string
	OldState    string
	NewState    string
	// IdempotencyKey defaults to the generated event id.
	IdempotencyKey string
	Payload        model.Payload
}

// EventBroker is the single entry point for emitting domain events
type EventBroker interface {
	// Emit logs the event and queues its notifications inside tx, the caller's transaction.
	// A malformed request or a database failure returns an error and the caller must roll back.
	// A preference lookup failure returns the logged event together with an error matching
	// appErr.IsDegraded; the caller should log it and commit.
	Emit(ctx context.Context, tx *sqlx.Tx, req EmitRequest) (*model.Event, error)
}

type BrokerConfig struct {
	MaxAttempts int
	// BaseURL prefixes the action path of every rendered notification.
	BaseURL string
}

type eventBroker struct {
	events   storage.EventStorage
	queue    storage.QueueStorage
	messages storage.MessageStorage
	prefs    PreferenceResolver
	tracer   tracing.TracerInterface
	cfg      BrokerConfig
	now      func() time.Time
	l        *slog.Logger
}

func NewEventBroker(
	events storage.EventStorage,
	queue storage.QueueStorage,
	messages storage.MessageStorage,
	prefs PreferenceResolver,
	tracer tracing.TracerInterface,
	cfg BrokerConfig,
	logger *slog.Logger,
) EventBroker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = model.DefaultMaxAttempts
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &eventBroker{
		events:   events,
		queue:    queue,
		messages: messages,
		prefs:    prefs,
		tracer:   tracer,
		cfg:      cfg,
		now:      time.Now,
		l:        logger.With("layer", "service", "component", "eventBroker"),
	}
}

func (b *eventBroker) Emit(ctx context.Context, tx *sqlx.Tx, req EmitRequest) (*model.Event, error) {
	if tx == nil {
		return nil, appErr.NewInternal("emit requires the caller's transaction")
	}
	if req.Payload == nil {
		return nil, appErr.NewMalformed("event payload is required")
	}
	eventType := req.Payload.EventType()

	ctx, span := b.tracer.StartInternalSpan(ctx, "EventBroker.Emit")
	defer span.End()

	evt, err := b.newEvent(req)
	if err != nil {
		b.tracer.RecordError(span, err)
		metrics.EventsEmitted.WithLabelValues(string(eventType), "malformed").Inc()
		b.l.ErrorContext(ctx, "Rejected malformed event", slog.String("event_type", string(eventType)), slog.Any("error", err))
		return nil, err
	}
	b.tracer.AddEventAttributes(span, evt.ID, string(evt.Type), evt.IdempotencyKey)

	inserted, err := b.events.Insert(ctx, tx, evt)
	if err != nil {
		b.tracer.RecordError(span, err)
		metrics.EventsEmitted.WithLabelValues(string(eventType), "error").Inc()
		return nil, err
	}
	if !inserted {
		existing, err := b.events.GetByIdempotencyKey(ctx, tx, evt.IdempotencyKey)
		if err != nil {
			b.tracer.RecordError(span, err)
			return nil, fmt.Errorf("load duplicate event: %w", err)
		}
		metrics.EventsEmitted.WithLabelValues(string(eventType), "duplicate").Inc()
		b.l.InfoContext(ctx, "Duplicate event ignored",
			slog.String("event_id", existing.ID), slog.String("idempotency_key", evt.IdempotencyKey))
		return existing, nil
	}

	fallback := b.postSystemMessage(ctx, tx, evt, req.Payload)

	queued, err := b.enqueue(ctx, tx, evt, req.Payload, fallback)
	if err != nil {
		b.tracer.RecordError(span, err)
		if appErr.IsDegraded(err) {
			metrics.EventsEmitted.WithLabelValues(string(eventType), "degraded").Inc()
			b.l.WarnContext(ctx, "Event logged without notifications",
				slog.String("event_id", evt.ID), slog.String("event_type", string(eventType)), slog.Any("error", err))
			return evt, err
		}
		metrics.EventsEmitted.WithLabelValues(string(eventType), "error").Inc()
		return nil, err
	}

	metrics.EventsEmitted.WithLabelValues(string(eventType), "logged").Inc()
	b.l.InfoContext(ctx, "Event emitted",
		slog.String("event_id", evt.ID), slog.String("event_type", string(eventType)), slog.Int("queued", queued))
	return evt, nil
}

func (b *eventBroker) newEvent(req EmitRequest) (*model.Event, error) {
	eventType := req.Payload.EventType()
	if !eventType.Known() {
		return nil, appErr.NewMalformed("unknown event type %q", eventType)
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"actor_id", req.ActorID},
		{"actor_role", req.ActorRole},
		{"subject_type", req.SubjectType},
		{"subject_id", req.SubjectID},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, appErr.NewMalformed("%s: missing %s", eventType, strings.Join(missing, ", "))
	}
	if err := req.Payload.Validate(); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, appErr.NewMalformed("encode %s metadata: %v", eventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = id.String()
	}

	return &model.Event{
		ID:             id.String(),
		Type:           eventType,
		Category:       eventType.Category(),
		ActorID:        req.ActorID,
		ActorRole:      req.ActorRole,
		SubjectType:    req.SubjectType,
		SubjectID:      req.SubjectID,
		JobID:          req.JobID,
		OldState:       req.OldState,
		NewState:       req.NewState,
		Metadata:       metadata,
		IdempotencyKey: key,
		CreatedAt:      b.now().UTC(),
	}, nil
}

// postSystemMessage writes the conversation notice of p, if any, under a savepoint so that a
// failure is rolled back on its own and the caller's transaction stays usable. When the write
// fails the notice is returned so it can be queued for the delivery worker instead.
func (b *eventBroker) postSystemMessage(ctx context.Context, tx *sqlx.Tx, evt *model.Event, p model.Payload) *storage.SystemMessage {
	notice, ok := p.(model.ConversationNotice)
	if !ok {
		return nil
	}
	conversationID, text := notice.SystemMessage()
	if conversationID == "" {
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{"event_id": evt.ID, "event_type": string(evt.Type)})
	msg := storage.SystemMessage{
		ID:             SystemMessageID(evt.ID),
		ConversationID: conversationID,
		Body:           text,
		Metadata:       string(metadata),
		CreatedAt:      evt.CreatedAt,
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+systemMessageSavepoint); err != nil {
		b.l.WarnContext(ctx, "Could not open savepoint for system message", slog.String("event_id", evt.ID), slog.Any("error", err))
		return &msg
	}
	if _, err := b.messages.AddSystemMessage(ctx, tx, msg); err != nil {
		b.l.WarnContext(ctx, "System message write failed, queueing it instead",
			slog.String("event_id", evt.ID), slog.String("conversation_id", conversationID), slog.Any("error", err))
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+systemMessageSavepoint); rbErr != nil {
			b.l.ErrorContext(ctx, "Rollback to savepoint failed", slog.String("event_id", evt.ID), slog.Any("error", rbErr))
		}
		return &msg
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+systemMessageSavepoint); err != nil {
		b.l.WarnContext(ctx, "Release savepoint failed", slog.String("event_id", evt.ID), slog.Any("error", err))
	}
	return nil
}

// enqueue resolves every recipient before writing anything, so a lookup failure leaves
// the event with no queued notifications at all, the system message fallback included.
func (b *eventBroker) enqueue(ctx context.Context, tx *sqlx.Tx, evt *model.Event, p model.Payload, fallback *storage.SystemMessage) (int, error) {
	routes, handled := routesFor(evt, p)
	if !handled {
		b.l.WarnContext(ctx, "No route for event type", slog.String("event_type", string(evt.Type)))
	}

	allowed := make([]route, 0, len(routes))
	for _, r := range routes {
		if r.recipientID == "" {
			continue
		}
		pref, err := b.prefs.ResolvePreferences(ctx, r.recipientID, r.category)
		switch {
		case appErr.IsNotFound(err):
			metrics.NotificationsSkipped.WithLabelValues("unknown_recipient").Inc()
			b.l.WarnContext(ctx, "Skipping unknown recipient", slog.String("event_id", evt.ID), slog.String("recipient_id", r.recipientID))
			continue
		case err != nil:
			if fallback != nil {
				b.l.ErrorContext(ctx, "System message dropped with the degraded event",
					slog.String("event_id", evt.ID), slog.String("conversation_id", fallback.ConversationID))
			}
			return 0, appErr.Degraded(fmt.Errorf("resolve preferences for %s: %w", r.recipientID, err))
		case !pref.EmailEnabled:
			metrics.NotificationsSkipped.WithLabelValues("master_opt_out").Inc()
			continue
		case !pref.CategoryEnabled:
			metrics.NotificationsSkipped.WithLabelValues("category_opt_out").Inc()
			continue
		}
		allowed = append(allowed, r)
	}

	queued := 0
	if fallback != nil {
		entry := b.newEntry(evt, fallback.ConversationID, model.ChannelSystemMessage, route{
			category: model.CategoryMessages,
			title:    "System message",
			body:     fallback.Body,
			data:     map[string]string{"conversation_id": fallback.ConversationID, "message_id": fallback.ID},
		})
		if err := b.queue.Enqueue(ctx, tx, entry); err != nil {
			return 0, err
		}
		queued++
		metrics.NotificationsEnqueued.WithLabelValues(string(model.ChannelSystemMessage)).Inc()
	}

	for _, r := range allowed {
		for _, ch := range r.channels {
			entry := b.newEntry(evt, r.recipientID, ch, r)
			if err := b.queue.Enqueue(ctx, tx, entry); err != nil {
				return queued, err
			}
			queued++
			metrics.NotificationsEnqueued.WithLabelValues(string(ch)).Inc()
		}
	}
	return queued, nil
}

func (b *eventBroker) newEntry(evt *model.Event, recipientID string, ch model.Channel, r route) *model.QueueEntry {
	now := evt.CreatedAt
	actionURL := ""
	if r.actionPath != "" {
		actionURL = b.cfg.BaseURL + r.actionPath
	}
	return &model.QueueEntry{
		ID:            uuid.NewString(),
		EventID:       evt.ID,
		RecipientID:   recipientID,
		Channel:       ch,
		EventType:     evt.Type,
		Category:      r.category,
		Title:         r.title,
		Body:          r.body,
		ActionURL:     actionURL,
		Data:          r.data,
		Status:        model.StatusPending,
		MaxAttempts:   b.cfg.MaxAttempts,
		NextAttemptAt: &now,
		CreatedAt:     now,
	}
}

// SystemMessageID is the message id used for the conversation notice of an event, shared by the
// in-transaction write and the queued fallback so the notice is written at most once.
func SystemMessageID(eventID string) string {
	return "msg_" + eventID
}
