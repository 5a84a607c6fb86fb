package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"credible/internal/audit"
	enrollmodels "credible/internal/enrollment/models"
	packmodels "credible/internal/pack/models"
	"credible/internal/platform/metrics"
	"credible/internal/platform/tracer"
	"credible/internal/review/models"
	"credible/internal/review/store"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/sentinel"
	psync "credible/pkg/platform/sync"
)

// PackReader resolves packs for milestone validation.
type PackReader interface {
	GetPack(ctx context.Context, packID string) (*packmodels.Pack, error)
}

// EnrollmentReader verifies the holder is enrolled and reacts to approvals.
// Implemented by the enrollment service.
type EnrollmentReader interface {
	Get(ctx context.Context, packID, holder string) (*enrollmodels.Enrollment, error)
	HandleApproval(ctx context.Context, packID, holder string) error
}

// Option configures the Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for submission and review spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// Service runs the submission lifecycle. Every attempt is retained; review
// decisions are single-shot per attempt, enforced under a per-entity lock.
type Service struct {
	store       store.Store
	packs       PackReader
	enrollments EnrollmentReader
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger
	locks       *psync.ShardedMutex
}

func NewService(st store.Store, packs PackReader, enrollments EnrollmentReader, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:       st,
		packs:       packs,
		enrollments: enrollments,
		auditor:     auditor,
		tracer:      tracer.NewNoop(),
		logger:      logger,
		locks:       psync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func tupleKey(packID, holder string, milestoneIndex uint64) string {
	return fmt.Sprintf("%s|%s|%d", packID, holder, milestoneIndex)
}

// SubmitProof files a new attempt for one milestone. Legal only when the
// milestone has no attempt yet or its latest attempt was rejected.
func (s *Service) SubmitProof(ctx context.Context, holder, packID string, milestoneIndex uint64, proofCID string) (_ *models.Submission, retErr error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSubmitProof,
		tracer.String(tracer.AttrPackID, packID),
		tracer.String(tracer.AttrHolder, holder),
	)
	defer func() { span.End(retErr) }()

	if holder == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing holder context")
	}
	if strings.TrimSpace(proofCID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "proofCid is required")
	}

	key := tupleKey(packID, holder, milestoneIndex)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if _, err := s.enrollments.Get(ctx, packID, holder); err != nil {
		return nil, err
	}
	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if milestoneIndex >= uint64(pack.TotalMilestones()) {
		return nil, dErrors.New(dErrors.CodeValidation, "milestone index out of range")
	}

	seq := 1
	latest, err := s.store.FindLatest(ctx, packID, holder, milestoneIndex)
	switch {
	case err == nil:
		switch latest.Status {
		case models.StatusPending:
			return nil, dErrors.New(dErrors.CodeStateConflict, "submission already pending review")
		case models.StatusApproved:
			return nil, dErrors.New(dErrors.CodeStateConflict, "milestone already approved")
		}
		seq = latest.Seq + 1
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read submissions", err)
	}

	sub := &models.Submission{
		ID:             models.NewSubmissionID(),
		PackID:         packID,
		Holder:         holder,
		MilestoneIndex: milestoneIndex,
		Seq:            seq,
		Status:         models.StatusPending,
		ProofCID:       proofCID,
		SubmittedAt:    time.Now(),
	}
	if err := s.store.Save(ctx, sub); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to save submission", err)
	}

	s.emitAudit(ctx, audit.Event{
		Actor:   holder,
		PackID:  packID,
		Subject: holder,
		Action:  audit.ActionProofSubmitted,
		Detail:  sub.ID,
	})
	if s.metrics != nil {
		s.metrics.SubmissionsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "proof submitted",
		"submission_id", sub.ID,
		"pack_id", packID,
		"holder", holder,
		"milestone", milestoneIndex,
		"seq", seq,
	)
	return sub, nil
}

// Approve marks a pending submission approved. Feedback is optional. The
// enrollment's progress is re-derived afterwards so completion is recorded
// on the approval that finishes the pack.
func (s *Service) Approve(ctx context.Context, reviewer, submissionID, feedback string) (*models.Submission, error) {
	sub, err := s.review(ctx, reviewer, submissionID, models.StatusApproved, feedback)
	if err != nil {
		return nil, err
	}
	if err := s.enrollments.HandleApproval(ctx, sub.PackID, sub.Holder); err != nil {
		s.logger.ErrorContext(ctx, "progress recompute failed",
			"submission_id", sub.ID,
			"error", err,
		)
	}
	return sub, nil
}

// Reject marks a pending submission rejected. Feedback is mandatory so the
// holder knows what to fix before resubmitting.
func (s *Service) Reject(ctx context.Context, reviewer, submissionID, feedback string) (*models.Submission, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "feedback is required when rejecting")
	}
	return s.review(ctx, reviewer, submissionID, models.StatusRejected, feedback)
}

func (s *Service) review(ctx context.Context, reviewer, submissionID string, decision models.Status, feedback string) (_ *models.Submission, retErr error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanReview,
		tracer.String(tracer.AttrSubmissionID, submissionID),
	)
	defer func() { span.End(retErr) }()

	if reviewer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing reviewer context")
	}

	s.locks.Lock(submissionID)
	defer s.locks.Unlock(submissionID)

	sub, err := s.store.Find(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read submission", err)
	}

	pack, err := s.packs.GetPack(ctx, sub.PackID)
	if err != nil {
		return nil, err
	}
	// Chain-only packs carry no local issuer record; skip the check there.
	if pack.Issuer != "" && pack.Issuer != reviewer {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the pack issuer may review submissions")
	}

	if sub.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeStateConflict, "submission already reviewed")
	}

	now := time.Now()
	sub.Status = decision
	sub.Feedback = feedback
	sub.ReviewedAt = &now
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to update submission", err)
	}

	action := audit.ActionSubmissionApproved
	outcome := "approved"
	if decision == models.StatusRejected {
		action = audit.ActionSubmissionRejected
		outcome = "rejected"
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
	s.emitAudit(ctx, audit.Event{
		Actor:   reviewer,
		PackID:  sub.PackID,
		Subject: sub.Holder,
		Action:  action,
		Detail:  sub.ID,
	})
	if s.metrics != nil {
		s.metrics.SubmissionsReviewed.WithLabelValues(outcome).Inc()
	}
	s.logger.InfoContext(ctx, "submission reviewed",
		"submission_id", sub.ID,
		"outcome", outcome,
		"reviewer", reviewer,
	)
	return sub, nil
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, err := s.store.Find(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read submission", err)
	}
	return sub, nil
}

// ListByEnrollment returns every attempt for the pair, ordered by milestone
// then sequence.
func (s *Service) ListByEnrollment(ctx context.Context, packID, holder string) ([]*models.Submission, error) {
	subs, err := s.store.ListByEnrollment(ctx, packID, holder)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list submissions", err)
	}
	return subs, nil
}

// ListPending returns the review queue, oldest first. Empty packID means
// across all packs.
func (s *Service) ListPending(ctx context.Context, packID string) ([]*models.Submission, error) {
	subs, err := s.store.ListPending(ctx, packID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list pending submissions", err)
	}
	return subs, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, event)
}
