package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of one submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Submission is one proof attempt against one milestone. Attempts are never
// overwritten; a resubmission after rejection gets a fresh id and the next
// sequence number.
type Submission struct {
	ID             string     `json:"id"`
	PackID         string     `json:"packId"`
	Holder         string     `json:"holder"`
	MilestoneIndex uint64     `json:"milestoneIndex"`
	Seq            int        `json:"seq"`
	Status         Status     `json:"status"`
	ProofCID       string     `json:"proofCid"`
	Feedback       string     `json:"feedback,omitempty"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	ReviewedAt     *time.Time `json:"reviewedAt,omitempty"`
}

// NewSubmissionID mints a submission identifier.
func NewSubmissionID() string {
	return fmt.Sprintf("sub_%s", uuid.New().String())
}
