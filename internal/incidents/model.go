// Package incidents is the durable record of incidents: status, timeline,
// and the assigned-vendor slot guarded by conditional-write semantics.
package incidents

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType is the kind of roadside work requested.
type ServiceType string

const (
	ServiceTypeTire   ServiceType = "tire"
	ServiceTypeEngine ServiceType = "engine"
	ServiceTypeTow    ServiceType = "tow"
)

// Status is one state in the incident lifecycle state machine.
type Status string

const (
	StatusCreated         Status = "created"
	StatusVendorAssigned  Status = "vendor_assigned"
	StatusVendorEnRoute   Status = "vendor_en_route"
	StatusVendorArrived   Status = "vendor_arrived"
	StatusWorkInProgress  Status = "work_in_progress"
	StatusWorkCompleted   Status = "work_completed"
	StatusPaymentPending  Status = "payment_pending"
	StatusClosed          Status = "closed"
	StatusCancelled       Status = "cancelled"
)

// ArrivalTerminalStatuses are the states that end the dispatch engine's
// arrival-monitoring responsibility for an incident (spec.md §4.3.3).
var ArrivalTerminalStatuses = map[Status]bool{
	StatusVendorArrived:  true,
	StatusWorkInProgress: true,
	StatusWorkCompleted:  true,
}

// TimelineEntry is one append-only record of a status transition.
type TimelineEntry struct {
	From      Status    `json:"from" db:"from_status"`
	To        Status    `json:"to" db:"to_status"`
	Timestamp time.Time `json:"timestamp" db:"occurred_at"`
	Actor     string    `json:"actor" db:"actor"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
}

// Incident is a driver's service request instance.
type Incident struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	DriverID         uuid.UUID   `json:"driver_id" db:"driver_id"`
	ServiceType      ServiceType `json:"service_type" db:"service_type"`
	Status           Status      `json:"status" db:"status"`
	Latitude         float64     `json:"latitude" db:"latitude"`
	Longitude        float64     `json:"longitude" db:"longitude"`
	PriorityTier     string      `json:"priority_tier" db:"priority_tier"`
	AssignedVendorID *uuid.UUID  `json:"assigned_vendor_id,omitempty" db:"assigned_vendor_id"`
	AssignedAt       *time.Time  `json:"assigned_at,omitempty" db:"assigned_at"`
	ExcludedVendors  []uuid.UUID `json:"excluded_vendors,omitempty" db:"excluded_vendors"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// RequiredCapabilitiesByServiceType maps an incident's service type to the
// vendor capabilities that satisfy it (spec.md §4.1).
var RequiredCapabilitiesByServiceType = map[ServiceType][]string{
	ServiceTypeTire:   {"tire_repair", "tire_replacement"},
	ServiceTypeEngine: {"engine_repair"},
	ServiceTypeTow:    {"towing"},
}

// PreconditionStatusForAssignment is the only status from which a
// conditional assignment write may succeed: the incident must still be
// unassigned. A VendorTimeout reverts an incident's status back to this
// value before re-entering the attempt loop, so a reassignment race is
// guarded the same way the original assignment race was.
const PreconditionStatusForAssignment = StatusCreated
