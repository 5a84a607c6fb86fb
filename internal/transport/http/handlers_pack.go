package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	packmodels "credible/internal/pack/models"
	packservice "credible/internal/pack/service"
	"credible/internal/platform/middleware"
	"credible/internal/transport/http/shared"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/httputil"
)

type createPackRequest struct {
	PackID      string `json:"packId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Milestones  []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ProofFormat string `json:"proofFormat"`
		Required    bool   `json:"required"`
	} `json:"milestones"`
}

func (h *Handler) handleCreatePack(w http.ResponseWriter, r *http.Request) {
	var req createPackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	milestones := make([]packmodels.Milestone, len(req.Milestones))
	for i, m := range req.Milestones {
		milestones[i] = packmodels.Milestone{
			Title:       m.Title,
			Description: m.Description,
			ProofFormat: m.ProofFormat,
			Required:    m.Required,
		}
	}

	pack, err := h.packs.CreatePack(r.Context(), middleware.WalletAddress(r.Context()), packservice.CreateRequest{
		PackID:      req.PackID,
		Name:        req.Name,
		Description: req.Description,
		Milestones:  milestones,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pack)
}

func (h *Handler) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.packs.ListPacks(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"packs": packs})
}

func (h *Handler) handleGetPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.packs.GetPack(r.Context(), chi.URLParam(r, "packID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pack)
}
