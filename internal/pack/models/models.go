package models

import (
	"strings"
	"time"

	dErrors "credible/pkg/domain-errors"
)

// Milestone is one achievement definition within a pack. ProofFormat tells
// holders what artifact the issuer expects (e.g. "PDF transcript").
type Milestone struct {
	Index       uint64 `json:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProofFormat string `json:"proofFormat"`
	Required    bool   `json:"required"`
}

// Pack is an issuer-defined credential template. Milestone count and
// definitions are immutable once the pack is confirmed on chain; a pack is
// never mutated or deleted after that.
type Pack struct {
	ID          string      `json:"id"`
	Issuer      string      `json:"issuer,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Milestones  []Milestone `json:"milestones"`
	CreatedAt   time.Time   `json:"createdAt"`

	// Confirmed reports whether the full PackCreated/PackMilestones pair has
	// been projected from chain. Unconfirmed packs are not enrollable.
	Confirmed bool `json:"confirmed"`
}

// TotalMilestones returns the immutable milestone count.
func (p Pack) TotalMilestones() int {
	return len(p.Milestones)
}

// Validate enforces creation invariants: a non-empty milestone set where every
// milestone carries a title, description, and required proof format.
func Validate(name string, milestones []Milestone) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeValidation, "pack name required")
	}
	if len(milestones) == 0 {
		return dErrors.New(dErrors.CodeValidation, "pack requires at least one milestone")
	}
	for _, m := range milestones {
		if strings.TrimSpace(m.Title) == "" {
			return dErrors.New(dErrors.CodeValidation, "milestone title required")
		}
		if strings.TrimSpace(m.Description) == "" {
			return dErrors.New(dErrors.CodeValidation, "milestone description required")
		}
		if strings.TrimSpace(m.ProofFormat) == "" {
			return dErrors.New(dErrors.CodeValidation, "milestone proof format required")
		}
	}
	return nil
}
