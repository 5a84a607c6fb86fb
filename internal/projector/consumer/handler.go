// Package consumer bridges the chain-event feed to the projector.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"credible/internal/chain"
	"credible/internal/platform/kafka"
	"credible/internal/projector"
	dErrors "credible/pkg/domain-errors"
)

// Handler processes chain-event envelopes from Kafka and projects them.
// It implements kafka.Handler for use with the feed consumer.
type Handler struct {
	projector *projector.Service
	logger    *slog.Logger
}

// NewHandler creates a new chain-event consumer handler.
func NewHandler(svc *projector.Service, logger *slog.Logger) *Handler {
	return &Handler{
		projector: svc,
		logger:    logger,
	}
}

// Handle projects a single feed message. Only transient failures return an
// error (skipping the commit so the message is redelivered, which is safe by
// idempotence). Malformed envelopes and integrity faults are committed:
// redelivering them can never succeed, and both are already surfaced.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	var env chain.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		h.logger.Error("failed to unmarshal chain event envelope",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	_, err := h.projector.Project(ctx, env)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeIntegrity) {
			return nil
		}
		return err
	}
	return nil
}
