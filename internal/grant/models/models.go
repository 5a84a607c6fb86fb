package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dErrors "credible/pkg/domain-errors"
)

// Status is the lazily evaluated state of a grant. Nothing flips a stored
// grant to expired; status is derived at read time.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// AllowedDurations are the grant lifetimes a holder may choose, in hours.
var AllowedDurations = []int{24, 48, 72, 168}

// Grant is a holder's time-boxed permission for one verifier to inspect the
// proofs behind one minted credential.
type Grant struct {
	ID        string     `json:"id"`
	Holder    string     `json:"holder"`
	Verifier  string     `json:"verifier"`
	PackID    string     `json:"packId"`
	GrantedAt time.Time  `json:"grantedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// NewGrantID mints a grant identifier.
func NewGrantID() string {
	return fmt.Sprintf("grant_%s", uuid.New().String())
}

// ValidateDuration checks the requested lifetime against the allowed set.
func ValidateDuration(hours int) error {
	for _, d := range AllowedDurations {
		if hours == d {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeValidation, "duration must be one of 24, 48, 72 or 168 hours")
}

// ComputeStatus derives the grant's state at the given instant. Revocation
// takes precedence over expiry.
func (g *Grant) ComputeStatus(now time.Time) Status {
	if g.RevokedAt != nil {
		return StatusRevoked
	}
	if !now.Before(g.ExpiresAt) {
		return StatusExpired
	}
	return StatusValid
}
