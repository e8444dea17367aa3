package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/samims/tradenotify/internal/model"
)

type messageStorage struct {
	db *sqlx.DB
}

// NewMessageStorage writes into the conversation and in-app notification tables
func NewMessageStorage(db *sqlx.DB) MessageStorage {
	return &messageStorage{db: db}
}

// AddSystemMessage posts a system_alert message and points the conversation at it.
func (s *messageStorage) AddSystemMessage(ctx context.Context, q Querier, m SystemMessage) (bool, error) {
	if m.Metadata == "" {
		m.Metadata = "{}"
	}
	insert := q.Rebind(`INSERT INTO messages
		(id, conversation_id, sender_id, sender_role, message_type, body, metadata, created_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	res, err := q.ExecContext(ctx, insert, m.ID, m.ConversationID, model.RoleSystem, "system_alert", m.Body, m.Metadata, m.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert system message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	update := q.Rebind(`UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`)
	if _, err := q.ExecContext(ctx, update, m.ID, m.CreatedAt.UTC(), m.ConversationID); err != nil {
		return false, fmt.Errorf("bump conversation: %w", err)
	}
	return true, nil
}

// AddInApp stores an in-app notification; replays with the same id are ignored.
func (s *messageStorage) AddInApp(ctx context.Context, n model.InAppNotification) error {
	query := s.db.Rebind(`INSERT INTO in_app_notifications
		(id, user_id, event_type, title, body, action_url, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.UserID, string(n.EventType), n.Title, n.Body, n.ActionURL, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert in-app notification: %w", err)
	}
	return nil
}
