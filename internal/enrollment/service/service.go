package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credible/internal/audit"
	"credible/internal/enrollment/models"
	"credible/internal/enrollment/store"
	packmodels "credible/internal/pack/models"
	"credible/internal/platform/metrics"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/sentinel"
	psync "credible/pkg/platform/sync"
)

// PackReader resolves packs for enrollment checks. Implemented by the pack
// service so confirmation state is already reconciled with chain.
type PackReader interface {
	GetPack(ctx context.Context, packID string) (*packmodels.Pack, error)
}

// SubmissionCounts reports approved and pending submission counts for one
// enrollment. Implemented by the review store.
type SubmissionCounts interface {
	CountByStatus(ctx context.Context, packID, holder string) (approved, pending int, err error)
}

// Option configures the Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service tracks which holders pursue which packs and derives their progress.
type Service struct {
	store       store.Store
	packs       PackReader
	submissions SubmissionCounts
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	locks       *psync.ShardedMutex
}

func NewService(st store.Store, packs PackReader, submissions SubmissionCounts, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:       st,
		packs:       packs,
		submissions: submissions,
		auditor:     auditor,
		logger:      logger,
		locks:       psync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func enrollmentKey(packID, holder string) string {
	return fmt.Sprintf("%s|%s", packID, holder)
}

// Enroll registers holder against packID. Only confirmed, fully assembled
// packs accept enrollments; a second enrollment for the same pair conflicts.
func (s *Service) Enroll(ctx context.Context, packID, holder string) (*models.Enrollment, error) {
	if holder == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing holder context")
	}

	key := enrollmentKey(packID, holder)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	if !pack.Confirmed {
		return nil, dErrors.New(dErrors.CodeNotFound, "pack not open for enrollment")
	}

	enrollment := &models.Enrollment{
		PackID:     packID,
		Holder:     holder,
		EnrolledAt: time.Now(),
	}
	if err := s.store.Save(ctx, enrollment); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "holder already enrolled in pack")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to save enrollment", err)
	}

	s.emitAudit(ctx, audit.Event{
		Actor:   holder,
		PackID:  packID,
		Subject: holder,
		Action:  audit.ActionEnrolled,
	})
	if s.metrics != nil {
		s.metrics.Enrollments.Inc()
	}
	s.logger.InfoContext(ctx, "holder enrolled", "pack_id", packID, "holder", holder)
	return enrollment, nil
}

// Get returns one enrollment.
func (s *Service) Get(ctx context.Context, packID, holder string) (*models.Enrollment, error) {
	enrollment, err := s.store.Find(ctx, packID, holder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read enrollment", err)
	}
	return enrollment, nil
}

// ListByHolder returns the holder's enrollments, oldest first.
func (s *Service) ListByHolder(ctx context.Context, holder string) ([]*models.Enrollment, error) {
	enrollments, err := s.store.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list enrollments", err)
	}
	return enrollments, nil
}

// ListByPack returns every enrollment in the pack, oldest first.
func (s *Service) ListByPack(ctx context.Context, packID string) ([]*models.Enrollment, error) {
	enrollments, err := s.store.ListByPack(ctx, packID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list enrollments", err)
	}
	return enrollments, nil
}

// Progress derives the holder's standing from submission counts and the
// pack's milestone total. Nothing here is stored.
func (s *Service) Progress(ctx context.Context, packID, holder string) (*models.Progress, error) {
	enrollment, err := s.Get(ctx, packID, holder)
	if err != nil {
		return nil, err
	}
	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	approved, pending, err := s.submissions.CountByStatus(ctx, packID, holder)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to count submissions", err)
	}
	progress := models.DeriveProgress(packID, holder, approved, pending, pack.TotalMilestones(), enrollment.Minted)
	return &progress, nil
}

// HandleApproval is invoked after a submission is approved. It re-derives
// progress and records completion the moment the last milestone lands.
func (s *Service) HandleApproval(ctx context.Context, packID, holder string) error {
	progress, err := s.Progress(ctx, packID, holder)
	if err != nil {
		return err
	}
	if !progress.Complete() {
		return nil
	}
	s.emitAudit(ctx, audit.Event{
		Actor:   holder,
		PackID:  packID,
		Subject: holder,
		Action:  audit.ActionEnrollmentCompleted,
	})
	s.logger.InfoContext(ctx, "enrollment completed", "pack_id", packID, "holder", holder)
	return nil
}

// MarkMinted records the credential mint for a completed enrollment. Minting
// twice conflicts; minting before completion is a state conflict.
func (s *Service) MarkMinted(ctx context.Context, packID, holder string) (*models.Enrollment, error) {
	key := enrollmentKey(packID, holder)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	enrollment, err := s.Get(ctx, packID, holder)
	if err != nil {
		return nil, err
	}
	if enrollment.Minted {
		return nil, dErrors.New(dErrors.CodeConflict, "credential already minted")
	}

	progress, err := s.Progress(ctx, packID, holder)
	if err != nil {
		return nil, err
	}
	if !progress.Complete() {
		return nil, dErrors.New(dErrors.CodeStateConflict, "enrollment not completed")
	}

	if err := s.store.SetMinted(ctx, packID, holder); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to record mint", err)
	}
	return s.Get(ctx, packID, holder)
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, event)
}
