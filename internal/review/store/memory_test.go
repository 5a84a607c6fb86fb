package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credible/internal/review/models"
	"credible/pkg/platform/sentinel"
)

func submission(id, packID, holder string, index uint64, seq int, status models.Status, at time.Time) *models.Submission {
	return &models.Submission{
		ID:             id,
		PackID:         packID,
		Holder:         holder,
		MilestoneIndex: index,
		Seq:            seq,
		Status:         status,
		ProofCID:       "Qm" + id,
		SubmittedAt:    at,
	}
}

func TestSaveAndFind(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now()

	sub := submission("sub-1", "pack-1", "0xholder", 0, 1, models.StatusPending, now)
	require.NoError(t, st.Save(ctx, sub))

	assert.True(t, errors.Is(st.Save(ctx, sub), sentinel.ErrConflict))

	found, err := st.Find(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, sub.ProofCID, found.ProofCID)

	// Returned value is a copy.
	found.Status = models.StatusApproved
	again, err := st.Find(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)

	_, err = st.Find(ctx, "missing")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestFindLatestFollowsSeq(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Save(ctx, submission("sub-1", "pack-1", "0xholder", 0, 1, models.StatusRejected, now)))
	require.NoError(t, st.Save(ctx, submission("sub-2", "pack-1", "0xholder", 0, 2, models.StatusPending, now.Add(time.Minute))))

	latest, err := st.FindLatest(ctx, "pack-1", "0xholder", 0)
	require.NoError(t, err)
	assert.Equal(t, "sub-2", latest.ID)

	_, err = st.FindLatest(ctx, "pack-1", "0xholder", 1)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestCountByStatusUsesLatestAttempt(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now()

	// Milestone 0: rejected then approved. Milestone 1: pending.
	// Milestone 2: rejected, no resubmission yet.
	require.NoError(t, st.Save(ctx, submission("sub-1", "pack-1", "0xholder", 0, 1, models.StatusRejected, now)))
	require.NoError(t, st.Save(ctx, submission("sub-2", "pack-1", "0xholder", 0, 2, models.StatusApproved, now)))
	require.NoError(t, st.Save(ctx, submission("sub-3", "pack-1", "0xholder", 1, 1, models.StatusPending, now)))
	require.NoError(t, st.Save(ctx, submission("sub-4", "pack-1", "0xholder", 2, 1, models.StatusRejected, now)))
	// Another holder's work does not leak in.
	require.NoError(t, st.Save(ctx, submission("sub-5", "pack-1", "0xother", 0, 1, models.StatusApproved, now)))

	approved, pending, err := st.CountByStatus(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, pending)
}

func TestListPendingOldestFirst(t *testing.T) {
	st := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, st.Save(ctx, submission("sub-new", "pack-1", "0xa", 0, 1, models.StatusPending, base.Add(time.Hour))))
	require.NoError(t, st.Save(ctx, submission("sub-old", "pack-1", "0xb", 1, 1, models.StatusPending, base)))
	require.NoError(t, st.Save(ctx, submission("sub-done", "pack-1", "0xc", 2, 1, models.StatusApproved, base)))
	require.NoError(t, st.Save(ctx, submission("sub-other", "pack-2", "0xd", 0, 1, models.StatusPending, base)))

	pending, err := st.ListPending(ctx, "pack-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "sub-old", pending[0].ID)
	assert.Equal(t, "sub-new", pending[1].ID)

	all, err := st.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListByEnrollmentOrder(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Save(ctx, submission("sub-b", "pack-1", "0xholder", 1, 1, models.StatusPending, now)))
	require.NoError(t, st.Save(ctx, submission("sub-a2", "pack-1", "0xholder", 0, 2, models.StatusPending, now)))
	require.NoError(t, st.Save(ctx, submission("sub-a1", "pack-1", "0xholder", 0, 1, models.StatusRejected, now)))

	subs, err := st.ListByEnrollment(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "sub-a1", subs[0].ID)
	assert.Equal(t, "sub-a2", subs[1].ID)
	assert.Equal(t, "sub-b", subs[2].ID)
}
