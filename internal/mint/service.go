// Package mint gates credential issuance: a credential may be minted exactly
// once per enrollment, and only after every milestone has been approved.
package mint

import (
	"context"
	"log/slog"

	"credible/internal/audit"
	enrollmodels "credible/internal/enrollment/models"
	"credible/internal/platform/metrics"
)

// Enrollments is the slice of the enrollment service the gate needs.
type Enrollments interface {
	MarkMinted(ctx context.Context, packID, holder string) (*enrollmodels.Enrollment, error)
}

// Option configures the Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

type Service struct {
	enrollments Enrollments
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(enrollments Enrollments, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		enrollments: enrollments,
		auditor:     auditor,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Mint records the credential mint for holder's completed enrollment in
// packID. The enrollment service enforces completion and once-only semantics.
func (s *Service) Mint(ctx context.Context, packID, holder string) (*enrollmodels.Enrollment, error) {
	enrollment, err := s.enrollments.MarkMinted(ctx, packID, holder)
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Actor:   holder,
			PackID:  packID,
			Subject: holder,
			Action:  audit.ActionCredentialMinted,
		})
	}
	if s.metrics != nil {
		s.metrics.CredentialsMinted.Inc()
	}
	s.logger.InfoContext(ctx, "credential minted", "pack_id", packID, "holder", holder)
	return enrollment, nil
}
