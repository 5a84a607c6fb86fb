package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"credible/internal/platform/middleware"
	"credible/internal/transport/http/shared"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/httputil"
)

type createGrantRequest struct {
	Verifier      string `json:"verifier"`
	PackID        string `json:"packId"`
	DurationHours int    `json:"durationHours"`
}

func (h *Handler) handleCreateGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	grant, err := h.grants.Grant(r.Context(), middleware.WalletAddress(r.Context()), req.Verifier, req.PackID, req.DurationHours)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	grant, err := h.grants.Revoke(r.Context(), middleware.WalletAddress(r.Context()), chi.URLParam(r, "grantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, grant)
}

// handleListGrants lists the caller's grants: as holder by default, as
// verifier with ?role=verifier.
func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	caller := middleware.WalletAddress(r.Context())

	var err error
	var grants any
	if r.URL.Query().Get("role") == "verifier" {
		grants, err = h.grants.ListByVerifier(r.Context(), caller)
	} else {
		grants, err = h.grants.ListByHolder(r.Context(), caller)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (h *Handler) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	decision, err := h.grants.CheckAccess(r.Context(), middleware.WalletAddress(r.Context()), chi.URLParam(r, "grantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}
