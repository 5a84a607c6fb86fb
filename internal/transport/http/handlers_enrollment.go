package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	enrollmodels "credible/internal/enrollment/models"
	"credible/internal/platform/middleware"
	"credible/internal/transport/http/shared"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/httputil"
)

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.enrollments.Enroll(r.Context(), chi.URLParam(r, "packID"), middleware.WalletAddress(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, enrollment)
}

type enrollmentView struct {
	*enrollmodels.Enrollment
	Progress *enrollmodels.Progress `json:"progress,omitempty"`
}

// handleListEnrollments serves the holder dashboard: each enrollment with its
// derived progress.
func (h *Handler) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "holder query parameter is required"))
		return
	}

	enrollments, err := h.enrollments.ListByHolder(r.Context(), holder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	views := make([]enrollmentView, 0, len(enrollments))
	for _, e := range enrollments {
		view := enrollmentView{Enrollment: e}
		progress, err := h.enrollments.Progress(r.Context(), e.PackID, e.Holder)
		if err == nil {
			view.Progress = progress
		} else {
			h.logger.WarnContext(r.Context(), "progress derivation failed",
				"pack_id", e.PackID,
				"holder", e.Holder,
				"error", err,
			)
		}
		views = append(views, view)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"enrollments": views})
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.mints.Mint(r.Context(), chi.URLParam(r, "packID"), middleware.WalletAddress(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, enrollment)
}
