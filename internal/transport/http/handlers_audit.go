package httptransport

import (
	"net/http"

	"credible/internal/platform/middleware"
	"credible/internal/transport/http/shared"
	"credible/pkg/platform/httputil"
)

// handleListAudit returns the caller's own audit trail. Events are scoped to
// the authenticated wallet so one party cannot read another's history.
func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.WalletAddress(r.Context())
	events, err := h.audits.List(r.Context(), actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
