package httptransport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"credible/internal/platform/middleware"
	reviewmodels "credible/internal/review/models"
	"credible/internal/transport/http/shared"
	dErrors "credible/pkg/domain-errors"
	"credible/pkg/platform/httputil"
)

type submitProofRequest struct {
	ProofCID string `json:"proofCid"`
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid milestone index"))
		return
	}
	var req submitProofRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sub, err := h.reviews.SubmitProof(r.Context(), middleware.WalletAddress(r.Context()), chi.URLParam(r, "packID"), index, req.ProofCID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sub)
}

type reviewRequest struct {
	Feedback string `json:"feedback"`
}

type reviewFunc func(ctx context.Context, reviewer, submissionID, feedback string) (*reviewmodels.Submission, error)

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.reviews.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.reviews.Reject)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, decide reviewFunc) {
	var req reviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sub, err := decide(r.Context(), middleware.WalletAddress(r.Context()), chi.URLParam(r, "submissionID"), req.Feedback)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	subs, err := h.reviews.ListPending(r.Context(), r.URL.Query().Get("packId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}
