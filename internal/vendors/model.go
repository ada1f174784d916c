// Package vendors holds the vendor directory: profiles, capabilities,
// availability, rolling acceptance/rating metrics, and the geospatial
// index used to answer "vendors within radius R of P".
package vendors

import (
	"time"

	"github.com/google/uuid"
)

// Capability is drawn from a closed enumeration of services a vendor may
// be equipped to perform.
type Capability string

const (
	CapabilityTireRepair      Capability = "tire_repair"
	CapabilityTireReplacement Capability = "tire_replacement"
	CapabilityEngineRepair    Capability = "engine_repair"
	CapabilityTowing          Capability = "towing"
	CapabilityJumpstart       Capability = "jumpstart"
	CapabilityFuelDelivery    Capability = "fuel_delivery"
)

// Availability is the vendor's current state with respect to accepting
// new offers.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

// Metrics holds the rolling performance figures the scoring engine reads.
type Metrics struct {
	AcceptanceRate float64 `json:"acceptance_rate" db:"acceptance_rate"` // [0,1]
	Rating         float64 `json:"rating" db:"rating"`                  // [0,5]
	CompletionRate float64 `json:"completion_rate" db:"completion_rate"` // [0,1]
}

// Pricing is a vendor's own price for a capability: a flat base price
// plus a per-mile rate applied to the incident's distance from the
// vendor's coverage center.
type Pricing struct {
	Capability   Capability `json:"capability" db:"capability"`
	BasePrice    float64    `json:"base_price" db:"base_price"`
	PerMileRate  float64    `json:"per_mile_rate" db:"per_mile_rate"`
}

// Vendor is a roadside-assistance service provider that may accept
// offers. A vendor may hold at most one active incident reference at a
// time.
type Vendor struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	Name               string       `json:"name" db:"name"`
	Capabilities       []Capability `json:"capabilities" db:"capabilities"`
	CoverageLatitude   float64      `json:"coverage_latitude" db:"coverage_latitude"`
	CoverageLongitude  float64      `json:"coverage_longitude" db:"coverage_longitude"`
	CoverageRadiusMi   float64      `json:"coverage_radius_miles" db:"coverage_radius_miles"`
	Availability       Availability `json:"availability" db:"availability"`
	ActiveIncidentID   *uuid.UUID   `json:"active_incident_id,omitempty" db:"active_incident_id"`
	Metrics            Metrics      `json:"metrics"`
	Pricing            []Pricing    `json:"pricing,omitempty"`
	PriorityTier       string       `json:"priority_tier,omitempty" db:"priority_tier"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// HasCapability reports whether the vendor can perform any of the given
// capabilities.
func (v *Vendor) HasCapability(required ...Capability) bool {
	have := make(map[Capability]struct{}, len(v.Capabilities))
	for _, c := range v.Capabilities {
		have[c] = struct{}{}
	}
	for _, want := range required {
		if _, ok := have[want]; ok {
			return true
		}
	}
	return false
}

// IsAvailable reports whether the vendor can currently be offered new work.
func (v *Vendor) IsAvailable() bool {
	return v.Availability == AvailabilityAvailable
}

// PriceFor returns the vendor's own price for servicing the given
// capability at the given distance in miles. Returns 0 if the vendor
// does not price that capability.
func (v *Vendor) PriceFor(capability Capability, miles float64) float64 {
	for _, p := range v.Pricing {
		if p.Capability == capability {
			return p.BasePrice + miles*p.PerMileRate
		}
	}
	return 0
}
