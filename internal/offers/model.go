// Package offers holds pending/accepted/declined/expired/cancelled offers,
// each with a per-offer expiry timestamp, plus the sweeper that expires
// overdue ones.
package offers

import (
	"time"

	"github.com/google/uuid"
)

// Status is one state in an offer's terminal-once lifecycle: pending is
// the only non-terminal state; every other state, once reached, is
// final (spec.md §3's "no resurrection" invariant).
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Breakdown is the five-factor score breakdown the Scoring Engine
// produces for a candidate vendor (spec.md §4.1).
type Breakdown struct {
	Distance       float64 `json:"distance"`
	Capability     float64 `json:"capability"`
	Availability   float64 `json:"availability"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	Rating         float64 `json:"rating"`
}

// Offer is a time-bounded proposal sent to a vendor for a specific
// incident.
type Offer struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	IncidentID      uuid.UUID  `json:"incident_id" db:"incident_id"`
	VendorID        uuid.UUID  `json:"vendor_id" db:"vendor_id"`
	Status          Status     `json:"status" db:"status"`
	MatchScore      float64    `json:"match_score" db:"match_score"`
	Breakdown       Breakdown  `json:"breakdown"`
	EstimatedPayout float64    `json:"estimated_payout" db:"estimated_payout"`
	Attempt         int        `json:"attempt" db:"attempt"`
	ExpiresAt       time.Time  `json:"expires_at" db:"expires_at"`
	RespondedAt     *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	DeclineReason   *string    `json:"decline_reason,omitempty" db:"decline_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the offer's expiry has been reached as of
// `now` (now >= ExpiresAt) (spec.md §8: "An offer whose expiresAt equals now is expired —
// strict <").
func (o *Offer) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
