package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

// Email is a rendered plain-text message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// EmailSender hands a rendered email to a provider
type EmailSender interface {
	Send(ctx context.Context, e Email) error
}

// Directory resolves a user's email address.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

type emailAdapter struct {
	dir    Directory
	sender EmailSender
}

// NewEmailAdapter renders queue entries as emails to the recipient's address on file.
func NewEmailAdapter(dir Directory, sender EmailSender) Adapter {
	return &emailAdapter{dir: dir, sender: sender}
}

func (a *emailAdapter) Deliver(ctx context.Context, n *model.QueueEntry) error {
	addr, err := a.dir.Email(ctx, n.RecipientID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return appErr.Permanent(err)
		}
		return fmt.Errorf("lookup address: %w", err)
	}
	if strings.TrimSpace(addr) == "" {
		return appErr.Permanent(fmt.Errorf("user %s has no email address", n.RecipientID))
	}
	return a.sender.Send(ctx, Email{To: addr, Subject: n.Title, Body: renderText(n)})
}

func renderText(n *model.QueueEntry) string {
	var b strings.Builder
	b.WriteString(n.Body)
	if n.ActionURL != "" {
		b.WriteString("\n\n")
		b.WriteString(n.ActionURL)
	}
	b.WriteString("\n\nYou can change which emails you receive in your notification settings.\n")
	return b.String()
}

type logSender struct {
	log *slog.Logger
}

// NewLogSender logs emails instead of sending them; it is the local development driver.
func NewLogSender(log *slog.Logger) EmailSender {
	return &logSender{log: log.With("layer", "channel", "component", "logSender")}
}

func (s *logSender) Send(ctx context.Context, e Email) error {
	s.log.InfoContext(ctx, "Simulating email delivery", slog.String("to", e.To), slog.String("subject", e.Subject))
	return nil
}
