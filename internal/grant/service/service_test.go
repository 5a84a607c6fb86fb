package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credible/internal/grant/models"
	grantstore "credible/internal/grant/store"
	reviewmodels "credible/internal/review/models"
	dErrors "credible/pkg/domain-errors"
)

type fakeMints struct {
	minted map[string]bool
}

func (f *fakeMints) Minted(_ context.Context, packID, holder string) (bool, error) {
	return f.minted[packID+"|"+holder], nil
}

type fakeProofs struct {
	subs []*reviewmodels.Submission
}

func (f *fakeProofs) ListByEnrollment(context.Context, string, string) ([]*reviewmodels.Submission, error) {
	return f.subs, nil
}

func newTestService(t *testing.T) (*Service, *fakeMints) {
	t.Helper()
	mints := &fakeMints{minted: map[string]bool{"pack-1|0xholder": true}}
	proofs := &fakeProofs{subs: []*reviewmodels.Submission{
		{Status: reviewmodels.StatusApproved, ProofCID: "QmOne"},
		{Status: reviewmodels.StatusRejected, ProofCID: "QmBad"},
		{Status: reviewmodels.StatusApproved, ProofCID: "QmTwo"},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(grantstore.New(), mints, proofs, nil, log), mints
}

func TestGrant(t *testing.T) {
	svc, _ := newTestService(t)

	grant, err := svc.Grant(context.Background(), "0xholder", "0xverifier", "pack-1", 48)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)
	assert.Equal(t, grant.GrantedAt.Add(48*time.Hour), grant.ExpiresAt)
	assert.Nil(t, grant.RevokedAt)
	assert.Equal(t, models.StatusValid, grant.ComputeStatus(time.Now()))
}

func TestGrantValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 36)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "duration outside allowed set")

	_, err = svc.Grant(ctx, "0xholder", "", "pack-1", 24)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Grant(ctx, "0xholder", "0xholder", "pack-1", 24)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGrantRequiresMintedCredential(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Grant(context.Background(), "0xholder", "0xverifier", "pack-unminted", 24)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func TestRevoke(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, "0xholder", grant.ID)
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	firstRevocation := *revoked.RevokedAt

	// Revoking again is a no-op success keeping the original timestamp.
	again, err := svc.Revoke(ctx, "0xholder", grant.ID)
	require.NoError(t, err)
	require.NotNil(t, again.RevokedAt)
	assert.Equal(t, firstRevocation, *again.RevokedAt)
}

func TestRevokeOnlyByHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, "0xverifier", grant.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = svc.Revoke(ctx, "0xholder", "grant_missing")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCheckAccessValid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)

	decision, err := svc.CheckAccess(ctx, "0xverifier", grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValid, decision.Status)
	assert.Equal(t, []string{"QmOne", "QmTwo"}, decision.ProofCIDs, "only approved proofs are exposed")
}

func TestCheckAccessWrongVerifier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)

	decision, err := svc.CheckAccess(ctx, "0xsnoop", grant.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, decision.Status)
	assert.Empty(t, decision.ProofCIDs)

	decision, err = svc.CheckAccess(ctx, "0xverifier", "grant_missing")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, decision.Status)
}

func TestCheckAccessExpired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)

	// Move the clock past expiry; nothing in the store changes.
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	decision, err := svc.CheckAccess(ctx, "0xverifier", grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, decision.Status)
	assert.Empty(t, decision.ProofCIDs)
}

func TestCheckAccessRevokedBeatsExpired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)
	_, err = svc.Revoke(ctx, "0xholder", grant.ID)
	require.NoError(t, err)

	// Even once expired, a revoked grant reports revoked.
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	decision, err := svc.CheckAccess(ctx, "0xverifier", grant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, decision.Status)
}

func TestListGrants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "0xholder", "0xverifier", "pack-1", 24)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, "0xholder", "0xother", "pack-1", 48)
	require.NoError(t, err)

	byHolder, err := svc.ListByHolder(ctx, "0xholder")
	require.NoError(t, err)
	assert.Len(t, byHolder, 2)

	byVerifier, err := svc.ListByVerifier(ctx, "0xverifier")
	require.NoError(t, err)
	assert.Len(t, byVerifier, 1)
}
