package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
)

type systemMessageAdapter struct {
	db    *sqlx.DB
	store storage.MessageStorage
}

// NewSystemMessageAdapter writes conversation notices that could not be written when the event was emitted.
func NewSystemMessageAdapter(db *sqlx.DB, store storage.MessageStorage) Adapter {
	return &systemMessageAdapter{db: db, store: store}
}

func (a *systemMessageAdapter) Deliver(ctx context.Context, n *model.QueueEntry) error {
	conversationID := n.Data["conversation_id"]
	messageID := n.Data["message_id"]
	if conversationID == "" || messageID == "" {
		return appErr.Permanent(fmt.Errorf("system message %s lacks conversation_id or message_id", n.ID))
	}
	metadata, err := json.Marshal(map[string]string{"event_id": n.EventID, "event_type": string(n.EventType)})
	if err != nil {
		return appErr.Permanent(err)
	}

	// a duplicate id means an earlier attempt already wrote it
	_, err = a.store.AddSystemMessage(ctx, a.db, storage.SystemMessage{
		ID:             messageID,
		ConversationID: conversationID,
		Body:           n.Body,
		Metadata:       string(metadata),
		CreatedAt:      n.CreatedAt,
	})
	return err
}
