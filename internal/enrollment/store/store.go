package store

import (
	"context"

	"credible/internal/enrollment/models"
)

// Store persists enrollments.
//
// Error contract:
//   - Save returns sentinel.ErrConflict when the (packID, holder) pair exists
//   - Find and SetMinted return sentinel.ErrNotFound for unknown pairs
type Store interface {
	Save(ctx context.Context, enrollment *models.Enrollment) error
	Find(ctx context.Context, packID, holder string) (*models.Enrollment, error)
	ListByHolder(ctx context.Context, holder string) ([]*models.Enrollment, error)
	ListByPack(ctx context.Context, packID string) ([]*models.Enrollment, error)
	SetMinted(ctx context.Context, packID, holder string) error
}
