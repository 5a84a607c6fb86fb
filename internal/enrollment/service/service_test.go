package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credible/internal/enrollment/models"
	enrollstore "credible/internal/enrollment/store"
	packmodels "credible/internal/pack/models"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/testutil"
)

type fakePacks struct {
	packs map[string]*packmodels.Pack
}

func (f *fakePacks) GetPack(_ context.Context, packID string) (*packmodels.Pack, error) {
	pack, ok := f.packs[packID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "pack not found")
	}
	return pack, nil
}

type fakeCounts struct {
	mu       sync.Mutex
	approved int
	pending  int
}

func (f *fakeCounts) CountByStatus(context.Context, string, string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved, f.pending, nil
}

func (f *fakeCounts) set(approved, pending int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = approved
	f.pending = pending
}

func testPack(id string, milestones int, confirmed bool) *packmodels.Pack {
	pack := &packmodels.Pack{ID: id, Issuer: "0xissuer", Name: "Pack", Confirmed: confirmed}
	for i := 0; i < milestones; i++ {
		pack.Milestones = append(pack.Milestones, packmodels.Milestone{
			Index: uint64(i), Title: "Milestone", Description: "d", ProofFormat: "pdf",
		})
	}
	return pack
}

func newTestService(t *testing.T) (*Service, *fakeCounts) {
	t.Helper()
	packs := &fakePacks{packs: map[string]*packmodels.Pack{
		"pack-1":      testPack("pack-1", 3, true),
		"pack-draft":  testPack("pack-draft", 3, false),
		"pack-single": testPack("pack-single", 1, true),
	}}
	counts := &fakeCounts{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(enrollstore.New(), packs, counts, nil, log), counts
}

func TestEnroll(t *testing.T) {
	svc, _ := newTestService(t)

	enrollment, err := svc.Enroll(context.Background(), "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, "pack-1", enrollment.PackID)
	assert.Equal(t, "0xholder", enrollment.Holder)
	assert.False(t, enrollment.Minted)
	assert.False(t, enrollment.EnrolledAt.IsZero())
}

func TestEnrollUnconfirmedPack(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Enroll(context.Background(), "pack-draft", "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEnrollUnknownPack(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Enroll(context.Background(), "missing", "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEnrollTwiceConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-1", "0xholder")
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "pack-1", "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestEnrollConcurrentExactlyOneWinner(t *testing.T) {
	svc, _ := newTestService(t)

	result := testutil.RunConcurrent(16, func(int) error {
		_, err := svc.Enroll(context.Background(), "pack-1", "0xholder")
		return err
	})
	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(15), result.Conflicts)
}

func TestProgressDerivation(t *testing.T) {
	svc, counts := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-1", "0xholder")
	require.NoError(t, err)

	progress, err := svc.Progress(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, 0, progress.ApprovedCount)
	assert.Equal(t, 3, progress.TotalMilestones)
	assert.Equal(t, models.StatusInProgress, progress.Status)
	assert.Zero(t, progress.PercentComplete)

	counts.set(2, 1)
	progress, err = svc.Progress(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.ApprovedCount)
	assert.Equal(t, 1, progress.PendingCount)
	assert.InDelta(t, 66.67, progress.PercentComplete, 0.01)
	assert.Equal(t, models.StatusInProgress, progress.Status)

	counts.set(3, 0)
	progress, err = svc.Progress(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, progress.Status)
	assert.True(t, progress.Complete())
}

func TestProgressWithoutEnrollment(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Progress(context.Background(), "pack-1", "0xstranger")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestMarkMintedRequiresCompletion(t *testing.T) {
	svc, counts := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-1", "0xholder")
	require.NoError(t, err)

	_, err = svc.MarkMinted(ctx, "pack-1", "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))

	counts.set(3, 0)
	enrollment, err := svc.MarkMinted(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.True(t, enrollment.Minted)
	require.NotNil(t, enrollment.MintedAt)

	progress, err := svc.Progress(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMinted, progress.Status)
}

func TestMarkMintedTwiceConflicts(t *testing.T) {
	svc, counts := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-single", "0xholder")
	require.NoError(t, err)
	counts.set(1, 0)

	_, err = svc.MarkMinted(ctx, "pack-single", "0xholder")
	require.NoError(t, err)

	_, err = svc.MarkMinted(ctx, "pack-single", "0xholder")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestMarkMintedConcurrentExactlyOneWinner(t *testing.T) {
	svc, counts := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-single", "0xholder")
	require.NoError(t, err)
	counts.set(1, 0)

	result := testutil.RunConcurrent(8, func(int) error {
		_, err := svc.MarkMinted(context.Background(), "pack-single", "0xholder")
		return err
	})
	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(7), result.Conflicts)
}

func TestListByHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "pack-single", "0xholder")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "pack-1", "0xother")
	require.NoError(t, err)

	enrollments, err := svc.ListByHolder(ctx, "0xholder")
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)
}
