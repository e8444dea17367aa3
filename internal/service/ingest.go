package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
)

// IngestEnvelope is the wire form of an event published by a remote service.
type IngestEnvelope struct {
	EventType      model.EventType `json:"event_type"`
	ActorID        string          `json:"actor_id"`
	ActorRole      string          `json:"actor_role"`
	SubjectType    string          `json:"subject_type"`
	SubjectID      string          `json:"subject_id"`
	JobID          string          `json:"job_id,omitempty"`
	OldState       string          `json:"old_state,omitempty"`
	NewState       string          `json:"new_state,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Ingestor emits events that arrive from outside the process, each in its own transaction
type Ingestor interface {
	// Ingest decodes raw and emits it. defaultKey is used when the envelope carries no idempotency key,
	// so redelivery of the same message is a no-op. Malformed input returns an error matching appErr.IsMalformed.
	Ingest(ctx context.Context, raw []byte, defaultKey string) (*model.Event, error)
}

type ingestor struct {
	db     *sqlx.DB
	broker EventBroker
	l      *slog.Logger
}

func NewIngestor(db *sqlx.DB, broker EventBroker, logger *slog.Logger) Ingestor {
	return &ingestor{
		db:     db,
		broker: broker,
		l:      logger.With("layer", "service", "component", "ingestor"),
	}
}

func (s *ingestor) Ingest(ctx context.Context, raw []byte, defaultKey string) (*model.Event, error) {
	var env IngestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.IngestMessages.WithLabelValues("malformed").Inc()
		return nil, appErr.NewMalformed("decode envelope: %v", err)
	}
	payload, err := model.DecodePayload(env.EventType, env.Metadata)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("malformed").Inc()
		return nil, err
	}
	key := env.IdempotencyKey
	if key == "" {
		key = defaultKey
	}
	req := EmitRequest{
		ActorID:        env.ActorID,
		ActorRole:      env.ActorRole,
		SubjectType:    env.SubjectType,
		SubjectID:      env.SubjectID,
		JobID:          env.JobID,
		OldState:       env.OldState,
		NewState:       env.NewState,
		IdempotencyKey: key,
		Payload:        payload,
	}

	var evt *model.Event
	err = storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var emitErr error
		evt, emitErr = s.broker.Emit(ctx, tx, req)
		if appErr.IsDegraded(emitErr) {
			s.l.WarnContext(ctx, "Ingested event without notifications", slog.Any("error", emitErr))
			return nil
		}
		return emitErr
	})
	if err != nil {
		result := "error"
		if appErr.IsMalformed(err) {
			result = "malformed"
		}
		metrics.IngestMessages.WithLabelValues(result).Inc()
		return nil, err
	}
	metrics.IngestMessages.WithLabelValues("ok").Inc()
	return evt, nil
}
