package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"credible/internal/audit"
	"credible/internal/chain"
	enrollmodels "credible/internal/enrollment/models"
	grantmodels "credible/internal/grant/models"
	grantservice "credible/internal/grant/service"
	packmodels "credible/internal/pack/models"
	packservice "credible/internal/pack/service"
	"credible/internal/platform/metrics"
	"credible/internal/platform/middleware"
	projstore "credible/internal/projector/store"
	reviewmodels "credible/internal/review/models"
)

// PackService is the slice of the pack registry the transport needs.
type PackService interface {
	CreatePack(ctx context.Context, issuer string, req packservice.CreateRequest) (*packmodels.Pack, error)
	GetPack(ctx context.Context, packID string) (*packmodels.Pack, error)
	ListPacks(ctx context.Context) ([]*packmodels.Pack, error)
}

type EnrollmentService interface {
	Enroll(ctx context.Context, packID, holder string) (*enrollmodels.Enrollment, error)
	ListByHolder(ctx context.Context, holder string) ([]*enrollmodels.Enrollment, error)
	Progress(ctx context.Context, packID, holder string) (*enrollmodels.Progress, error)
}

type ReviewService interface {
	SubmitProof(ctx context.Context, holder, packID string, milestoneIndex uint64, proofCID string) (*reviewmodels.Submission, error)
	Approve(ctx context.Context, reviewer, submissionID, feedback string) (*reviewmodels.Submission, error)
	Reject(ctx context.Context, reviewer, submissionID, feedback string) (*reviewmodels.Submission, error)
	ListByEnrollment(ctx context.Context, packID, holder string) ([]*reviewmodels.Submission, error)
	ListPending(ctx context.Context, packID string) ([]*reviewmodels.Submission, error)
}

type MintService interface {
	Mint(ctx context.Context, packID, holder string) (*enrollmodels.Enrollment, error)
}

type GrantService interface {
	Grant(ctx context.Context, holder, verifier, packID string, durationHours int) (*grantmodels.Grant, error)
	Revoke(ctx context.Context, holder, grantID string) (*grantmodels.Grant, error)
	CheckAccess(ctx context.Context, verifier, grantID string) (*grantservice.Decision, error)
	ListByHolder(ctx context.Context, holder string) ([]*grantmodels.Grant, error)
	ListByVerifier(ctx context.Context, verifier string) ([]*grantmodels.Grant, error)
}

// ProjectionService exposes the chain read model. Implemented by the
// projector store.
type ProjectionService interface {
	Record(ctx context.Context, eventID string) (*projstore.Record, error)
	History(ctx context.Context, key chain.MilestoneKey) ([]projstore.HistoryEntry, error)
	TransfersByToken(ctx context.Context, tokenID string) ([]projstore.Transfer, error)
}

// AuditService serves a caller's own audit trail. Implemented by the audit
// publisher.
type AuditService interface {
	List(ctx context.Context, actor string) ([]audit.Event, error)
}

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	packs       PackService
	enrollments EnrollmentService
	reviews     ReviewService
	mints       MintService
	grants      GrantService
	projections ProjectionService
	audits      AuditService
	logger      *slog.Logger
}

func NewHandler(
	packs PackService,
	enrollments EnrollmentService,
	reviews ReviewService,
	mints MintService,
	grants GrantService,
	projections ProjectionService,
	audits AuditService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		packs:       packs,
		enrollments: enrollments,
		reviews:     reviews,
		mints:       mints,
		grants:      grants,
		projections: projections,
		audits:      audits,
		logger:      logger,
	}
}

// NewRouter wires all public endpoints with middleware. Mutating routes sit
// behind wallet session auth; reads are open. Metrics may be nil.
func NewRouter(h *Handler, jwtSigningKey string, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	if m != nil {
		r.Use(endpointLatency(m))
	}

	// Open reads
	r.Get("/packs", h.handleListPacks)
	r.Get("/packs/{packID}", h.handleGetPack)
	r.Get("/packs/{packID}/milestones/{index}/history", h.handleMilestoneHistory)
	r.Get("/enrollments", h.handleListEnrollments)
	r.Get("/reviews/pending", h.handleListPending)
	r.Get("/events/{eventID}", h.handleGetEvent)
	r.Get("/tokens/{tokenID}/transfers", h.handleListTransfers)

	// Wallet-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.WalletAuth(jwtSigningKey, logger))

		r.Post("/packs", h.handleCreatePack)
		r.Post("/packs/{packID}/enroll", h.handleEnroll)
		r.Post("/packs/{packID}/milestones/{index}/submissions", h.handleSubmitProof)
		r.Post("/submissions/{submissionID}/approve", h.handleApprove)
		r.Post("/submissions/{submissionID}/reject", h.handleReject)
		r.Post("/packs/{packID}/mint", h.handleMint)
		r.Post("/grants", h.handleCreateGrant)
		r.Get("/grants", h.handleListGrants)
		r.Post("/grants/{grantID}/revoke", h.handleRevokeGrant)
		r.Get("/grants/{grantID}/access", h.handleCheckAccess)
		r.Get("/audit", h.handleListAudit)
	})

	return r
}

// endpointLatency observes request duration per matched route pattern.
func endpointLatency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			m.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		})
	}
}
