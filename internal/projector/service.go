// Package projector consumes decoded contract events and idempotently
// projects them into the normalized read model. It is the source of truth the
// pack, enrollment, and review paths read back to reconcile locally-optimistic
// state with confirmed on-chain state.
package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"credible/internal/chain"
	"credible/internal/platform/metrics"
	"credible/internal/platform/tracer"
	"credible/internal/projector/store"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/sentinel"
	psync "credible/pkg/platform/sync"
)

// EntityUpdate describes the effect one projected event had on the read model.
type EntityUpdate struct {
	EventID  string
	Type     string
	Entity   string
	Replayed bool
}

// Entities touched by projections.
const (
	EntityPack      = "pack"
	EntityMilestone = "milestone"
	EntityReview    = "review_history"
	EntityMint      = "mint"
	EntityTransfer  = "transfer"
	EntityEvent     = "event"
)

// Option configures the Service.
type Option func(*Service)

// Service projects chain events into the read model. Writes to the same event
// id are serialized through a sharded key mutex; events for disjoint ids
// proceed independently.
type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	locks   *psync.ShardedMutex
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for projection spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func NewService(st store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  st,
		logger: logger,
		tracer: tracer.NewNoop(),
		locks:  psync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Project decodes one event envelope and upserts it keyed by its event id.
// Replaying an already-seen id with an identical payload is a no-op; the same
// id with a different payload is an integrity fault that is surfaced, counted,
// and never overwrites the stored record.
func (s *Service) Project(ctx context.Context, env chain.Envelope) (*EntityUpdate, error) {
	eventID := env.EventID()
	ctx, span := s.tracer.Start(ctx, tracer.SpanProject,
		tracer.String(tracer.AttrEventID, eventID),
		tracer.String(tracer.AttrEventType, env.Type),
	)
	var retErr error
	defer func() { span.End(retErr) }()

	event, err := chain.Decode(env)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeIntegrity) {
			s.reportIntegrityFault(ctx, eventID, env.Type, err)
		}
		retErr = err
		return nil, err
	}

	// Canonical payload: deterministic field order, so byte equality decides
	// replay vs. divergence regardless of how the source serialized params.
	payload, err := json.Marshal(event)
	if err != nil {
		retErr = dErrors.Wrap(dErrors.CodeInternal, "encode canonical payload", err)
		return nil, retErr
	}

	rec := store.Record{
		EventID:     eventID,
		ChainID:     env.ChainID,
		BlockNumber: env.BlockNumber,
		LogIndex:    env.LogIndex,
		Type:        env.Type,
		Payload:     payload,
	}
	mut, entity := mutationFor(env, event)

	s.locks.Lock(eventID)
	inserted, err := s.store.Apply(ctx, rec, mut)
	s.locks.Unlock(eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrIntegrity) {
			retErr = dErrors.Wrap(dErrors.CodeIntegrity,
				fmt.Sprintf("event %s observed with divergent payload", eventID), err)
			s.reportIntegrityFault(ctx, eventID, env.Type, retErr)
			return nil, retErr
		}
		retErr = dErrors.Wrap(dErrors.CodeInternal, "apply projection", err)
		if s.metrics != nil {
			s.metrics.ProjectionErrors.Inc()
		}
		return nil, retErr
	}

	update := &EntityUpdate{
		EventID:  eventID,
		Type:     env.Type,
		Entity:   entity,
		Replayed: !inserted,
	}
	span.SetAttributes(tracer.Bool(tracer.AttrReplay, update.Replayed))

	if s.metrics != nil {
		if inserted {
			s.metrics.EventsProjected.WithLabelValues(env.Type).Inc()
		} else {
			s.metrics.EventReplays.Inc()
		}
	}
	if inserted {
		s.logger.InfoContext(ctx, "event projected",
			"event_id", eventID,
			"event_type", env.Type,
			"entity", entity,
		)
	}
	return update, nil
}

// reportIntegrityFault surfaces a divergent-payload fault to operators. The
// fault is never auto-resolved: the stored record stays as first written.
func (s *Service) reportIntegrityFault(ctx context.Context, eventID, eventType string, err error) {
	if s.metrics != nil {
		s.metrics.IntegrityFaults.Inc()
	}
	s.logger.ErrorContext(ctx, "projection integrity fault",
		"event_id", eventID,
		"event_type", eventType,
		"error", err,
	)
}

// mutationFor maps a decoded event onto its normalized read-model effect.
func mutationFor(env chain.Envelope, event chain.Event) (*store.Mutation, string) {
	eventID := env.EventID()
	switch ev := event.(type) {
	case chain.PackCreated:
		return &store.Mutation{Pack: &store.PackHeader{
			PackID:         ev.PackID,
			Name:           ev.Name,
			Description:    ev.Description,
			MilestoneCount: ev.MilestoneCount,
			EventID:        eventID,
		}}, EntityPack

	case chain.PackMilestones:
		return &store.Mutation{Milestone: &store.MilestoneDef{
			PackID:      ev.PackID,
			MilestoneID: ev.MilestoneID,
			Title:       ev.Title,
			Description: ev.Description,
			Required:    ev.Required,
			EventID:     eventID,
		}}, EntityMilestone

	case chain.MilestoneSubmitted:
		return &store.Mutation{History: &store.HistoryEntry{
			EventID:        eventID,
			Holder:         ev.Holder,
			PackID:         ev.PackID,
			MilestoneIndex: ev.MilestoneIndex,
			BlockNumber:    env.BlockNumber,
			LogIndex:       env.LogIndex,
			Kind:           chain.KindMilestoneSubmitted,
			ProofCID:       ev.ProofCID,
		}}, EntityReview

	case chain.MilestoneApproved:
		return &store.Mutation{History: &store.HistoryEntry{
			EventID:        eventID,
			Holder:         ev.Holder,
			PackID:         ev.PackID,
			MilestoneIndex: ev.MilestoneIndex,
			BlockNumber:    env.BlockNumber,
			LogIndex:       env.LogIndex,
			Kind:           chain.KindMilestoneApproved,
			Feedback:       ev.Feedback,
			NewProgress:    ev.NewProgress,
		}}, EntityReview

	case chain.MilestoneRejected:
		return &store.Mutation{History: &store.HistoryEntry{
			EventID:        eventID,
			Holder:         ev.Holder,
			PackID:         ev.PackID,
			MilestoneIndex: ev.MilestoneIndex,
			BlockNumber:    env.BlockNumber,
			LogIndex:       env.LogIndex,
			Kind:           chain.KindMilestoneRejected,
			Feedback:       ev.Feedback,
		}}, EntityReview

	case chain.PackMinted:
		return &store.Mutation{Mint: &store.MintRecord{
			PackID:  ev.PackID,
			Holder:  ev.Holder,
			EventID: eventID,
		}}, EntityMint

	case chain.TransferSingle:
		return &store.Mutation{Transfers: []store.Transfer{{
			EventID:  eventID,
			Operator: ev.Operator,
			From:     ev.From,
			To:       ev.To,
			TokenID:  ev.TokenID,
			Value:    ev.Value,
		}}}, EntityTransfer

	case chain.TransferBatch:
		transfers := make([]store.Transfer, len(ev.TokenIDs))
		for i := range ev.TokenIDs {
			transfers[i] = store.Transfer{
				EventID:  eventID,
				Index:    i,
				Operator: ev.Operator,
				From:     ev.From,
				To:       ev.To,
				TokenID:  ev.TokenIDs[i],
				Value:    ev.Values[i],
			}
		}
		return &store.Mutation{Transfers: transfers}, EntityTransfer

	default:
		// URI, ApprovalForAll, OwnershipTransferred: raw record only.
		return nil, EntityEvent
	}
}

// Store exposes the projection read model for components that reconcile
// against confirmed chain state.
func (s *Service) Store() store.Store {
	return s.store
}
