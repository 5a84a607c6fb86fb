package store

import (
	"context"

	"credible/internal/grant/models"
)

// Store persists grants.
//
// Error contract:
//   - Save returns sentinel.ErrConflict on a duplicate grant id
//   - Find and Revoke return sentinel.ErrNotFound for unknown ids
type Store interface {
	Save(ctx context.Context, grant *models.Grant) error
	Find(ctx context.Context, id string) (*models.Grant, error)
	ListByHolder(ctx context.Context, holder string) ([]*models.Grant, error)
	ListByVerifier(ctx context.Context, verifier string) ([]*models.Grant, error)
	// Revoke stamps the grant revoked at the given time. Revoking an already
	// revoked grant leaves the original timestamp in place.
	Revoke(ctx context.Context, id string) error
}
