package channel

import (
	"context"
	"fmt"

	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
)

// Pusher forwards a stored in-app notification to connected clients.
type Pusher interface {
	Push(ctx context.Context, n model.InAppNotification) error
}

type inAppAdapter struct {
	store  storage.MessageStorage
	pusher Pusher
}

// NewInAppAdapter stores in-app notifications keyed by queue id, so a retried row is written once.
// pusher may be nil when no realtime transport is configured.
func NewInAppAdapter(store storage.MessageStorage, pusher Pusher) Adapter {
	return &inAppAdapter{store: store, pusher: pusher}
}

func (a *inAppAdapter) Deliver(ctx context.Context, n *model.QueueEntry) error {
	notif := model.InAppNotification{
		ID:        n.ID,
		UserID:    n.RecipientID,
		EventType: n.EventType,
		Title:     n.Title,
		Body:      n.Body,
		ActionURL: n.ActionURL,
		CreatedAt: n.CreatedAt,
	}
	if err := a.store.AddInApp(ctx, notif); err != nil {
		return err
	}
	if a.pusher == nil {
		return nil
	}
	if err := a.pusher.Push(ctx, notif); err != nil {
		return fmt.Errorf("push in-app notification: %w", err)
	}
	return nil
}
