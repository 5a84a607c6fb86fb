package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PacksCreated   prometheus.Counter
	PacksConfirmed prometheus.Counter
	Enrollments    prometheus.Counter

	SubmissionsCreated  prometheus.Counter
	SubmissionsReviewed *prometheus.CounterVec

	CredentialsMinted prometheus.Counter

	GrantsIssued  prometheus.Counter
	GrantsRevoked prometheus.Counter
	AccessChecks  *prometheus.CounterVec

	EventsProjected  *prometheus.CounterVec
	EventReplays     prometheus.Counter
	IntegrityFaults  prometheus.Counter
	ProjectionErrors prometheus.Counter

	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PacksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_packs_created_total",
			Help: "Total number of packs created locally",
		}),
		PacksConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_packs_confirmed_total",
			Help: "Total number of packs confirmed on chain with a complete milestone set",
		}),
		Enrollments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_enrollments_total",
			Help: "Total number of holder enrollments",
		}),
		SubmissionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_submissions_created_total",
			Help: "Total number of proof submissions",
		}),
		SubmissionsReviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credible_submissions_reviewed_total",
			Help: "Total number of reviewed submissions by outcome",
		}, []string{"outcome"}),
		CredentialsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_credentials_minted_total",
			Help: "Total number of minted credentials",
		}),
		GrantsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_grants_issued_total",
			Help: "Total number of verifier access grants issued",
		}),
		GrantsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_grants_revoked_total",
			Help: "Total number of verifier access grants revoked",
		}),
		AccessChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credible_access_checks_total",
			Help: "Total number of verifier access checks by result",
		}, []string{"result"}),
		EventsProjected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credible_events_projected_total",
			Help: "Total number of chain events projected by type",
		}, []string{"event_type"}),
		EventReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_event_replays_total",
			Help: "Total number of redelivered events ignored as idempotent no-ops",
		}),
		// Alert on any increase: a non-zero rate means the event source
		// delivered conflicting payloads for the same event id.
		IntegrityFaults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_integrity_faults_total",
			Help: "Total number of integrity faults detected during projection",
		}),
		ProjectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credible_projection_errors_total",
			Help: "Total number of transient projection failures eligible for redelivery",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credible_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
