package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// IncidentCreatedData triggers a new DispatchRun. Published by the HTTP
// intake (CreateIncident in internal/dispatch/handler.go) and consumed by
// the dispatch engine's subscriber in cmd/dispatch. A VendorTimeout
// re-enters the attempt loop by calling Engine.Dispatch directly; no
// IncidentCreated event is published for it.
type IncidentCreatedData struct {
	IncidentID  uuid.UUID `json:"incident_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	ServiceType string    `json:"service_type"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// IncidentCancelledData signals cancellation to an active DispatchRun.
type IncidentCancelledData struct {
	IncidentID  uuid.UUID `json:"incident_id"`
	CancelledBy string    `json:"cancelled_by"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OfferCreatedData is emitted once per pending offer in an attempt batch.
type OfferCreatedData struct {
	OfferID         uuid.UUID `json:"offer_id"`
	IncidentID      uuid.UUID `json:"incident_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	Attempt         int       `json:"attempt"`
	MatchScore      float64   `json:"match_score"`
	EstimatedPayout float64   `json:"estimated_payout"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// OfferAcceptedData is emitted exactly once per incident, at the
// linearization point of the assignment race.
type OfferAcceptedData struct {
	OfferID    uuid.UUID `json:"offer_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// OfferDeclinedData is emitted when a vendor declines an offer.
type OfferDeclinedData struct {
	OfferID    uuid.UUID `json:"offer_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	Reason     string    `json:"reason,omitempty"`
	DeclinedAt time.Time `json:"declined_at"`
}

// OfferExpiredData is emitted by the offer sweeper when a pending offer's
// expiry passes unanswered. The engine does not publish it; it learns of
// the expiry from the offer store after the sweeper has run.
type OfferExpiredData struct {
	OfferID    uuid.UUID `json:"offer_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}

// OfferCancelledData is emitted for every sibling offer terminated by a
// supersession or by incident cancellation.
type OfferCancelledData struct {
	OfferID     uuid.UUID `json:"offer_id"`
	IncidentID  uuid.UUID `json:"incident_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// IncidentAssignedData is emitted alongside OfferAccepted, marking the
// incident's transition into vendor_assigned.
type IncidentAssignedData struct {
	IncidentID uuid.UUID `json:"incident_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	OfferID    uuid.UUID `json:"offer_id"`
	Attempt    int       `json:"attempt"`
	AssignedAt time.Time `json:"assigned_at"`
}

// IncidentEscalatedData is emitted when the attempt loop exhausts its
// expansion budget, or when a fatal internal error short-circuits a run.
type IncidentEscalatedData struct {
	IncidentID  uuid.UUID `json:"incident_id"`
	Attempts    int       `json:"attempts"`
	FinalRadius float64   `json:"final_radius_miles"`
	Reason      string    `json:"reason"`
	EscalatedAt time.Time `json:"escalated_at"`
}

// VendorTimeoutData is emitted when an assigned vendor fails to reach a
// terminal arrival state before the arrival deadline.
type VendorTimeoutData struct {
	IncidentID  uuid.UUID `json:"incident_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	AssignedAt  time.Time `json:"assigned_at"`
	TimedOutAt  time.Time `json:"timed_out_at"`
}

// IncidentStatusChangedData mirrors an incident timeline entry onto the
// bus for downstream lifecycle collaborators.
type IncidentStatusChangedData struct {
	IncidentID uuid.UUID `json:"incident_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}
