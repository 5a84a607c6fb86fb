package audit

import "time"

// Event is emitted from domain logic to capture key lifecycle transitions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	PackID    string    `json:"packId,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// Audit event actions. Enrollment history is append-only: every status change
// a holder's enrollment goes through leaves one of these behind.
const (
	ActionPackCreated         = "pack_created"
	ActionPackConfirmed       = "pack_confirmed"
	ActionEnrolled            = "enrolled"
	ActionProofSubmitted      = "proof_submitted"
	ActionSubmissionApproved  = "submission_approved"
	ActionSubmissionRejected  = "submission_rejected"
	ActionEnrollmentCompleted = "enrollment_completed"
	ActionCredentialMinted    = "credential_minted"
	ActionAccessGranted       = "access_granted"
	ActionAccessRevoked       = "access_revoked"
)
