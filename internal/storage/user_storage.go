package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

type userStorage struct {
	db *sqlx.DB
}

// NewUserStorage reads preferences and addresses from the users table owned by the marketplace
func NewUserStorage(db *sqlx.DB) UserStorage {
	return &userStorage{db: db}
}

// ResolvePreferences combines the master email switch with the per-category flag.
func (s *userStorage) ResolvePreferences(ctx context.Context, userID string, category model.Category) (model.Preference, error) {
	var row struct {
		Enabled bool   `db:"email_notifications_enabled"`
		Prefs   []byte `db:"email_preferences"`
	}
	query := s.db.Rebind(`SELECT email_notifications_enabled, email_preferences FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Preference{}, appErr.NewNotFound("user %s", userID)
		}
		return model.Preference{}, fmt.Errorf("resolve preferences: %w", err)
	}
	return model.Preference{
		EmailEnabled:    row.Enabled,
		CategoryEnabled: model.CategoryEnabled(row.Prefs, category),
	}, nil
}

func (s *userStorage) Email(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	query := s.db.Rebind(`SELECT email FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &email, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErr.NewNotFound("user %s", userID)
		}
		return "", fmt.Errorf("lookup email: %w", err)
	}
	return email.String, nil
}
