package service

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enrollmodels "credible/internal/enrollment/models"
	packmodels "credible/internal/pack/models"
	"credible/internal/platform/tracer"
	"credible/internal/review/models"
	reviewstore "credible/internal/review/store"
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

type fakeEnrollments struct {
	enrolled  map[string]bool
	approvals atomic.Int32
}

func (f *fakeEnrollments) Get(_ context.Context, packID, holder string) (*enrollmodels.Enrollment, error) {
	if !f.enrolled[packID+"|"+holder] {
		return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
	}
	return &enrollmodels.Enrollment{PackID: packID, Holder: holder}, nil
}

func (f *fakeEnrollments) HandleApproval(context.Context, string, string) error {
	f.approvals.Add(1)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeEnrollments) {
	t.Helper()
	pack := &packmodels.Pack{ID: "pack-1", Issuer: "0xissuer", Name: "Pack", Confirmed: true}
	for i := 0; i < 3; i++ {
		pack.Milestones = append(pack.Milestones, packmodels.Milestone{
			Index: uint64(i), Title: "Milestone", Description: "d", ProofFormat: "pdf",
		})
	}
	packs := &fakePacks{packs: map[string]*packmodels.Pack{"pack-1": pack}}
	enrollments := &fakeEnrollments{enrolled: map[string]bool{"pack-1|0xholder": true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(reviewstore.New(), packs, enrollments, nil, log), enrollments
}

func TestSubmitProof(t *testing.T) {
	svc, _ := newTestService(t)

	sub, err := svc.SubmitProof(context.Background(), "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Equal(t, 1, sub.Seq)
	assert.Equal(t, "QmProof", sub.ProofCID)
}

func TestSubmitProofValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "  ")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.SubmitProof(ctx, "0xholder", "pack-1", 3, "QmProof")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "index out of range")

	_, err = svc.SubmitProof(ctx, "0xstranger", "pack-1", 0, "QmProof")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "not enrolled")
}

func TestSubmitWhilePendingConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)

	_, err = svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func TestApprove(t *testing.T) {
	svc, enrollments := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)

	// Approval feedback may be empty.
	approved, err := svc.Approve(ctx, "0xissuer", sub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, int32(1), enrollments.approvals.Load())

	// An approved milestone cannot be resubmitted.
	_, err = svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof2")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func TestRejectRequiresFeedback(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, "0xissuer", sub.ID, "   ")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	rejected, err := svc.Reject(ctx, "0xissuer", sub.ID, "proof is unreadable")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "proof is unreadable", rejected.Feedback)
}

func TestResubmitAfterRejection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmFirst")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "0xissuer", first.ID, "try again")
	require.NoError(t, err)

	second, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmSecond")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Seq)

	// The rejected attempt is retained alongside the new one.
	attempts, err := svc.ListByEnrollment(ctx, "pack-1", "0xholder")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.StatusRejected, attempts[0].Status)
	assert.Equal(t, models.StatusPending, attempts[1].Status)
}

func TestReviewNonPendingConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "0xissuer", sub.ID, "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "0xissuer", sub.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))

	_, err = svc.Reject(ctx, "0xissuer", sub.ID, "no")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func TestReviewOnlyByIssuer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "0ximpostor", sub.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestConcurrentReviewExactlyOneWinner(t *testing.T) {
	svc, enrollments := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)

	// Half approve, half reject; exactly one decision lands.
	result := testutil.RunConcurrent(8, func(idx int) error {
		if idx%2 == 0 {
			_, err := svc.Approve(context.Background(), "0xissuer", sub.ID, "")
			return err
		}
		_, err := svc.Reject(context.Background(), "0xissuer", sub.ID, "no")
		return err
	})
	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(7), result.Conflicts)

	final, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusPending, final.Status)
	assert.LessOrEqual(t, enrollments.approvals.Load(), int32(1))
}

func TestListPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmA")
	require.NoError(t, err)
	_, err = svc.SubmitProof(ctx, "0xholder", "pack-1", 1, "QmB")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "0xissuer", first.ID, "")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, "pack-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(1), pending[0].MilestoneIndex)

	all, err := svc.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// recordingTracer captures started spans so tests can assert on them.
type recordingTracer struct {
	spans []*recordedSpan
}

type recordedSpan struct {
	name  string
	attrs []tracer.Attribute
	err   error
	ended bool
}

func (r *recordingTracer) Start(ctx context.Context, name string, attrs ...tracer.Attribute) (context.Context, tracer.Span) {
	span := &recordedSpan{name: name, attrs: attrs}
	r.spans = append(r.spans, span)
	return ctx, span
}

func (s *recordedSpan) End(err error) {
	s.err = err
	s.ended = true
}

func (s *recordedSpan) SetAttributes(attrs ...tracer.Attribute) {
	s.attrs = append(s.attrs, attrs...)
}

func (s *recordedSpan) AddEvent(string, ...tracer.Attribute) {}

func (s *recordedSpan) attr(key string) any {
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return nil
}

func TestSubmitAndReviewEmitSpans(t *testing.T) {
	rec := &recordingTracer{}
	pack := &packmodels.Pack{
		ID: "pack-1", Issuer: "0xissuer", Name: "Pack", Confirmed: true,
		Milestones: []packmodels.Milestone{{Index: 0, Title: "Milestone"}},
	}
	packs := &fakePacks{packs: map[string]*packmodels.Pack{"pack-1": pack}}
	enrollments := &fakeEnrollments{enrolled: map[string]bool{"pack-1|0xholder": true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(reviewstore.New(), packs, enrollments, nil, log, WithTracer(rec))
	ctx := context.Background()

	sub, err := svc.SubmitProof(ctx, "0xholder", "pack-1", 0, "QmProof")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "0xissuer", sub.ID, "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "0xissuer", sub.ID, "feedback")
	require.Error(t, err)

	require.Len(t, rec.spans, 3)

	submit := rec.spans[0]
	assert.Equal(t, tracer.SpanSubmitProof, submit.name)
	assert.Equal(t, "pack-1", submit.attr(tracer.AttrPackID))
	assert.True(t, submit.ended)
	assert.NoError(t, submit.err)

	approve := rec.spans[1]
	assert.Equal(t, tracer.SpanReview, approve.name)
	assert.Equal(t, sub.ID, approve.attr(tracer.AttrSubmissionID))
	assert.Equal(t, "approved", approve.attr(tracer.AttrOutcome))
	assert.NoError(t, approve.err)

	// The failed second review still ends its span, carrying the error.
	reject := rec.spans[2]
	assert.Equal(t, tracer.SpanReview, reject.name)
	assert.True(t, reject.ended)
	assert.Error(t, reject.err)
}
