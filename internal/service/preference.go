package service

import (
	"context"

	"github.com/samims/tradenotify/internal/model"
)

// PreferenceResolver answers whether a user wants notifications of a category.
// It is consulted at emit time and again right before delivery.
type PreferenceResolver interface {
	ResolvePreferences(ctx context.Context, userID string, category model.Category) (model.Preference, error)
}
