package store

import (
	"context"

	"credible/internal/review/models"
)

// Store persists submissions.
//
// Error contract:
//   - Save returns sentinel.ErrConflict on a duplicate submission id
//   - Find, FindLatest and Update return sentinel.ErrNotFound
type Store interface {
	Save(ctx context.Context, sub *models.Submission) error
	Find(ctx context.Context, id string) (*models.Submission, error)
	// FindLatest returns the highest-seq submission for the milestone tuple.
	FindLatest(ctx context.Context, packID, holder string, milestoneIndex uint64) (*models.Submission, error)
	Update(ctx context.Context, sub *models.Submission) error
	// ListByEnrollment returns every attempt for the pair, ordered by
	// (milestoneIndex, seq).
	ListByEnrollment(ctx context.Context, packID, holder string) ([]*models.Submission, error)
	// ListPending returns pending submissions oldest first. An empty packID
	// means all packs.
	ListPending(ctx context.Context, packID string) ([]*models.Submission, error)
	// CountByStatus counts milestones whose latest attempt is approved or
	// pending for the pair.
	CountByStatus(ctx context.Context, packID, holder string) (approved, pending int, err error)
}
