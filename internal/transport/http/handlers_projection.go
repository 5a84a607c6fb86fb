package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"credible/internal/chain"
	"credible/internal/transport/http/shared"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/httputil"
	"credible/pkg/platform/sentinel"
)

type eventView struct {
	EventID     string          `json:"eventId"`
	ChainID     uint64          `json:"chainId"`
	BlockNumber uint64          `json:"blockNumber"`
	LogIndex    uint64          `json:"logIndex"`
	Type        string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.projections.Record(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event not found"))
			return
		}
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eventView{
		EventID:     rec.EventID,
		ChainID:     rec.ChainID,
		BlockNumber: rec.BlockNumber,
		LogIndex:    rec.LogIndex,
		Type:        rec.Type,
		Payload:     json.RawMessage(rec.Payload),
	})
}

// handleMilestoneHistory serves the confirmed review timeline of one
// milestone, ordered by chain position.
func (h *Handler) handleMilestoneHistory(w http.ResponseWriter, r *http.Request) {
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "holder query parameter is required"))
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid milestone index"))
		return
	}

	history, err := h.projections.History(r.Context(), chain.MilestoneKey{
		Holder:         holder,
		PackID:         chi.URLParam(r, "packID"),
		MilestoneIndex: index,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.projections.TransfersByToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}
