package store

import (
	"context"

	"credible/internal/pack/models"
)

// Store persists locally-created packs.
//
// Error contract:
//   - Save returns sentinel.ErrConflict when the pack id already exists
//   - Find returns sentinel.ErrNotFound when no pack exists
//   - Confirm returns sentinel.ErrNotFound when no pack exists
type Store interface {
	Save(ctx context.Context, pack *models.Pack) error
	Find(ctx context.Context, packID string) (*models.Pack, error)
	List(ctx context.Context) ([]*models.Pack, error)
	Confirm(ctx context.Context, packID string) error
}
