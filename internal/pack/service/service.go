package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"credible/internal/audit"
	"credible/internal/pack/models"
	"credible/internal/pack/store"
	"credible/internal/platform/metrics"
	projstore "credible/internal/projector/store"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/sentinel"
)

// ProjectionReader exposes the confirmed chain state the registry reconciles
// against. Implemented by the projector store.
type ProjectionReader interface {
	Pack(ctx context.Context, packID string) (*projstore.PackProjection, error)
}

// Option configures the Service.
type Option func(*Service)

// Service owns pack entities. Packs are write-once: created locally in a
// pending state, confirmed when the projector has assembled the full
// PackCreated/PackMilestones pair from chain.
type Service struct {
	store       store.Store
	projections ProjectionReader
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(st store.Store, projections ProjectionReader, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:       st,
		projections: projections,
		auditor:     auditor,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateRequest carries the issuer's pack definition. PackID is optional; when
// empty a local id is generated until the chain assigns the canonical one.
type CreateRequest struct {
	PackID      string
	Name        string
	Description string
	Milestones  []models.Milestone
}

func (s *Service) CreatePack(ctx context.Context, issuer string, req CreateRequest) (*models.Pack, error) {
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing issuer context")
	}
	if err := models.Validate(req.Name, req.Milestones); err != nil {
		return nil, err
	}

	packID := req.PackID
	if packID == "" {
		packID = fmt.Sprintf("pack_%s", uuid.New().String())
	}

	// A pack already observed on chain is write-once regardless of local state.
	if _, err := s.projections.Pack(ctx, packID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "pack already created on chain")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read pack projection", err)
	}

	milestones := make([]models.Milestone, len(req.Milestones))
	for i, m := range req.Milestones {
		m.Index = uint64(i)
		milestones[i] = m
	}

	pack := &models.Pack{
		ID:          packID,
		Issuer:      issuer,
		Name:        req.Name,
		Description: req.Description,
		Milestones:  milestones,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Save(ctx, pack); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pack already exists")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to save pack", err)
	}

	s.emitAudit(ctx, audit.Event{
		Actor:  issuer,
		PackID: pack.ID,
		Action: audit.ActionPackCreated,
		Detail: pack.Name,
	})
	if s.metrics != nil {
		s.metrics.PacksCreated.Inc()
	}
	s.logger.InfoContext(ctx, "pack created",
		"pack_id", pack.ID,
		"issuer", issuer,
		"milestones", len(pack.Milestones),
	)
	return pack, nil
}

// GetPack returns the pack merged with its confirmed chain state. A pack only
// seen on chain (created through another node) is synthesized from the
// projection; a local pack whose projection is fully assembled is confirmed
// on first read.
func (s *Service) GetPack(ctx context.Context, packID string) (*models.Pack, error) {
	local, err := s.store.Find(ctx, packID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read pack", err)
	}

	proj, projErr := s.projections.Pack(ctx, packID)
	if projErr != nil && !errors.Is(projErr, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read pack projection", projErr)
	}

	switch {
	case local == nil && proj == nil:
		return nil, dErrors.New(dErrors.CodeNotFound, "pack not found")
	case local == nil:
		return packFromProjection(proj), nil
	}

	if err := s.reconcile(ctx, local, proj); err != nil {
		return nil, err
	}
	return local, nil
}

// ListPacks returns all known packs with reconciled confirmation state.
// A pack whose confirmed chain state diverges from its local milestone set is
// left unconfirmed and logged rather than failing the whole listing.
func (s *Service) ListPacks(ctx context.Context) ([]*models.Pack, error) {
	packs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list packs", err)
	}
	for _, pack := range packs {
		if pack.Confirmed {
			continue
		}
		proj, err := s.projections.Pack(ctx, pack.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to read pack projection", err)
		}
		if err := s.reconcile(ctx, pack, proj); err != nil {
			if dErrors.HasCode(err, dErrors.CodeIntegrity) {
				s.logger.WarnContext(ctx, "pack diverges from confirmed chain state",
					"pack_id", pack.ID,
					"error", err,
				)
				continue
			}
			return nil, err
		}
	}
	return packs, nil
}

// reconcile flips a local pack to Confirmed once its chain projection is fully
// assembled. The chain copy is canonical: a confirmed projection whose
// milestone set disagrees with the locally-authored one is an integrity fault,
// and the pack must not start gating enrollments with the wrong count.
func (s *Service) reconcile(ctx context.Context, local *models.Pack, proj *projstore.PackProjection) error {
	if local.Confirmed || proj == nil || !proj.Ready() {
		return nil
	}
	if err := matchProjection(local, proj); err != nil {
		return err
	}
	if err := s.store.Confirm(ctx, local.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to confirm pack", err)
	}
	local.Confirmed = true
	if s.metrics != nil {
		s.metrics.PacksConfirmed.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		Actor:  local.Issuer,
		PackID: local.ID,
		Action: audit.ActionPackConfirmed,
	})
	return nil
}

// matchProjection checks the confirmed chain milestone set against the local
// one: same count, and every projected definition present under the same
// index and title.
func matchProjection(local *models.Pack, proj *projstore.PackProjection) error {
	if uint64(len(local.Milestones)) != proj.Header.MilestoneCount {
		return dErrors.New(dErrors.CodeIntegrity,
			fmt.Sprintf("pack %s: confirmed chain state declares %d milestones, local pack has %d",
				local.ID, proj.Header.MilestoneCount, len(local.Milestones)))
	}
	byIndex := make(map[uint64]models.Milestone, len(local.Milestones))
	for _, m := range local.Milestones {
		byIndex[m.Index] = m
	}
	for _, def := range proj.Milestones {
		m, ok := byIndex[def.MilestoneID]
		if !ok || m.Title != def.Title {
			return dErrors.New(dErrors.CodeIntegrity,
				fmt.Sprintf("pack %s: confirmed milestone %d diverges from local definition", local.ID, def.MilestoneID))
		}
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, event)
}

// packFromProjection synthesizes a pack from confirmed chain state. The proof
// format is not emitted on chain, so it stays empty here.
func packFromProjection(proj *projstore.PackProjection) *models.Pack {
	pack := &models.Pack{
		ID:          proj.Header.PackID,
		Name:        proj.Header.Name,
		Description: proj.Header.Description,
		Confirmed:   proj.Ready(),
	}
	for _, def := range proj.Milestones {
		pack.Milestones = append(pack.Milestones, models.Milestone{
			Index:       def.MilestoneID,
			Title:       def.Title,
			Description: def.Description,
			Required:    def.Required,
		})
	}
	return pack
}
