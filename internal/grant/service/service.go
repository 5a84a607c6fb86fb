package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credible/internal/audit"
	"credible/internal/grant/models"
	"credible/internal/grant/store"
	"credible/internal/platform/metrics"
	reviewmodels "credible/internal/review/models"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/sentinel"
	psync "credible/pkg/platform/sync"
)

// MintChecker reports whether holder holds a minted credential for packID.
// Satisfied by the projector store; deployments without chain ingestion wire
// an enrollment-backed implementation instead.
type MintChecker interface {
	Minted(ctx context.Context, packID, holder string) (bool, error)
}

// ProofReader exposes the submissions behind a credential so a valid access
// check can surface the approved proof CIDs. Implemented by the review
// service.
type ProofReader interface {
	ListByEnrollment(ctx context.Context, packID, holder string) ([]*reviewmodels.Submission, error)
}

// Decision is the outcome of one access check.
type Decision struct {
	Status    models.Status `json:"status"`
	Grant     *models.Grant `json:"grant,omitempty"`
	ProofCIDs []string      `json:"proofCids,omitempty"`
}

// StatusNotFound is the decision for unknown grants and for grants presented
// by the wrong verifier. The two cases are indistinguishable to the caller.
const StatusNotFound models.Status = "not-found"

// Option configures the Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service manages verifier access grants. Grant status is evaluated lazily on
// read; checking access never mutates anything.
type Service struct {
	store   store.Store
	mints   MintChecker
	proofs  ProofReader
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	locks   *psync.ShardedMutex
	now     func() time.Time
}

func NewService(st store.Store, mints MintChecker, proofs ProofReader, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:   st,
		mints:   mints,
		proofs:  proofs,
		auditor: auditor,
		logger:  logger,
		locks:   psync.NewShardedMutex(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Grant issues a time-boxed access grant on holder's minted credential.
func (s *Service) Grant(ctx context.Context, holder, verifier, packID string, durationHours int) (*models.Grant, error) {
	if holder == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing holder context")
	}
	if verifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verifier is required")
	}
	if verifier == holder {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot grant access to yourself")
	}
	if err := models.ValidateDuration(durationHours); err != nil {
		return nil, err
	}

	minted, err := s.mints.Minted(ctx, packID, holder)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to check mint status", err)
	}
	if !minted {
		return nil, dErrors.New(dErrors.CodeStateConflict, "credential not minted")
	}

	now := s.now()
	grant := &models.Grant{
		ID:        models.NewGrantID(),
		Holder:    holder,
		Verifier:  verifier,
		PackID:    packID,
		GrantedAt: now,
		ExpiresAt: now.Add(time.Duration(durationHours) * time.Hour),
	}
	if err := s.store.Save(ctx, grant); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to save grant", err)
	}

	s.emitAudit(ctx, audit.Event{
		Actor:   holder,
		PackID:  packID,
		Subject: verifier,
		Action:  audit.ActionAccessGranted,
		Detail:  grant.ID,
	})
	if s.metrics != nil {
		s.metrics.GrantsIssued.Inc()
	}
	s.logger.InfoContext(ctx, "access granted",
		"grant_id", grant.ID,
		"pack_id", packID,
		"holder", holder,
		"verifier", verifier,
		"expires_at", grant.ExpiresAt,
	)
	return grant, nil
}

// Revoke withdraws a grant. Only the issuing holder may revoke; revoking an
// already revoked grant succeeds without changing the revocation time.
func (s *Service) Revoke(ctx context.Context, holder, grantID string) (*models.Grant, error) {
	if holder == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing holder context")
	}

	s.locks.Lock(grantID)
	defer s.locks.Unlock(grantID)

	grant, err := s.find(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.Holder != holder {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the granting holder may revoke")
	}
	if grant.RevokedAt != nil {
		return grant, nil
	}

	if err := s.store.Revoke(ctx, grantID); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to revoke grant", err)
	}

	s.emitAudit(ctx, audit.Event{
		Actor:   holder,
		PackID:  grant.PackID,
		Subject: grant.Verifier,
		Action:  audit.ActionAccessRevoked,
		Detail:  grant.ID,
	})
	if s.metrics != nil {
		s.metrics.GrantsRevoked.Inc()
	}
	s.logger.InfoContext(ctx, "access revoked", "grant_id", grantID, "holder", holder)
	return s.find(ctx, grantID)
}

// CheckAccess evaluates a grant for the presenting verifier. A grant unknown
// to the store and a grant issued to a different verifier both come back
// not-found. Valid decisions carry the approved proof CIDs. Checking never
// writes.
func (s *Service) CheckAccess(ctx context.Context, verifier, grantID string) (*Decision, error) {
	grant, err := s.store.Find(ctx, grantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordCheck(string(StatusNotFound))
			return &Decision{Status: StatusNotFound}, nil
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read grant", err)
	}
	if grant.Verifier != verifier {
		s.recordCheck(string(StatusNotFound))
		return &Decision{Status: StatusNotFound}, nil
	}

	status := grant.ComputeStatus(s.now())
	decision := &Decision{Status: status, Grant: grant}
	if status == models.StatusValid {
		cids, err := s.approvedProofs(ctx, grant.PackID, grant.Holder)
		if err != nil {
			return nil, err
		}
		decision.ProofCIDs = cids
	}
	s.recordCheck(string(status))
	return decision, nil
}

// ListByHolder returns the holder's grants, oldest first.
func (s *Service) ListByHolder(ctx context.Context, holder string) ([]*models.Grant, error) {
	grants, err := s.store.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list grants", err)
	}
	return grants, nil
}

// ListByVerifier returns grants issued to the verifier, oldest first.
func (s *Service) ListByVerifier(ctx context.Context, verifier string) ([]*models.Grant, error) {
	grants, err := s.store.ListByVerifier(ctx, verifier)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list grants", err)
	}
	return grants, nil
}

func (s *Service) find(ctx context.Context, grantID string) (*models.Grant, error) {
	grant, err := s.store.Find(ctx, grantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read grant", err)
	}
	return grant, nil
}

func (s *Service) approvedProofs(ctx context.Context, packID, holder string) ([]string, error) {
	subs, err := s.proofs.ListByEnrollment(ctx, packID, holder)
	if err != nil {
		return nil, err
	}
	var cids []string
	for _, sub := range subs {
		if sub.Status == reviewmodels.StatusApproved {
			cids = append(cids, sub.ProofCID)
		}
	}
	return cids, nil
}

func (s *Service) recordCheck(result string) {
	if s.metrics != nil {
		s.metrics.AccessChecks.WithLabelValues(result).Inc()
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, event)
}
