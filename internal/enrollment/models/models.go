package models

import "time"

// Status describes where a holder stands against a pack.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusMinted     Status = "minted"
)

// Enrollment binds one holder to one pack. The (PackID, Holder) pair is
// unique; re-enrollment is a conflict.
type Enrollment struct {
	PackID     string     `json:"packId"`
	Holder     string     `json:"holder"`
	EnrolledAt time.Time  `json:"enrolledAt"`
	Minted     bool       `json:"minted"`
	MintedAt   *time.Time `json:"mintedAt,omitempty"`
}

// Progress is derived, never stored. ApprovedCount can only grow and never
// exceeds TotalMilestones.
type Progress struct {
	PackID          string  `json:"packId"`
	Holder          string  `json:"holder"`
	ApprovedCount   int     `json:"approvedCount"`
	PendingCount    int     `json:"pendingCount"`
	TotalMilestones int     `json:"totalMilestones"`
	PercentComplete float64 `json:"percentComplete"`
	Status          Status  `json:"status"`
}

// DeriveProgress is the single place progress figures come from. Completion
// means every milestone approved; minted overrides completed.
func DeriveProgress(packID, holder string, approved, pending, total int, minted bool) Progress {
	if total > 0 && approved > total {
		approved = total
	}
	p := Progress{
		PackID:          packID,
		Holder:          holder,
		ApprovedCount:   approved,
		PendingCount:    pending,
		TotalMilestones: total,
		Status:          StatusInProgress,
	}
	if total > 0 {
		p.PercentComplete = float64(approved) / float64(total) * 100
	}
	if total > 0 && approved == total {
		p.Status = StatusCompleted
	}
	if minted {
		p.Status = StatusMinted
	}
	return p
}

// Complete reports whether every milestone of the pack has been approved.
func (p Progress) Complete() bool {
	return p.TotalMilestones > 0 && p.ApprovedCount == p.TotalMilestones
}
