// Package matchconfig is the Configuration Provider: versioned matching
// parameters, cached in Redis and backed by Postgres, read fresh at the
// start of every dispatch attempt so a mid-run config change never
// affects an attempt already underway (spec.md §9, decided: an attempt
// pins the snapshot it started with).
package matchconfig

import "fmt"

// Weights are the five scoring-factor weights. Spec.md §6 requires they
// sum to 1.0 within a small tolerance.
type Weights struct {
	Distance       float64 `json:"distance"`
	Capability     float64 `json:"capability"`
	Availability   float64 `json:"availability"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	Rating         float64 `json:"rating"`
}

// Sum returns the total of all five weights.
func (w Weights) Sum() float64 {
	return w.Distance + w.Capability + w.Availability + w.AcceptanceRate + w.Rating
}

// MatchingConfig is one versioned snapshot of the parameters governing
// matching, offer fan-out, radius expansion, escalation, and arrival
// monitoring (spec.md §6).
type MatchingConfig struct {
	Version                    int     `json:"version" db:"version"`
	Weights                    Weights `json:"weights"`
	DefaultRadiusMiles         float64 `json:"default_radius_miles" db:"default_radius_miles"`
	MaxRadiusMiles             float64 `json:"max_radius_miles" db:"max_radius_miles"`
	RadiusExpansionFactor      float64 `json:"radius_expansion_factor" db:"radius_expansion_factor"`
	MaxExpansionAttempts       int     `json:"max_expansion_attempts" db:"max_expansion_attempts"`
	OfferTimeoutSeconds        int     `json:"offer_timeout_seconds" db:"offer_timeout_seconds"`
	MaxConcurrentOffers        int     `json:"max_concurrent_offers_per_attempt" db:"max_concurrent_offers_per_attempt"`
	ArrivalDeadlineMinutes     int     `json:"arrival_deadline_minutes" db:"arrival_deadline_minutes"`
	ArrivalPollIntervalMinutes int     `json:"arrival_poll_interval_minutes" db:"arrival_poll_interval_minutes"`
}

// Default is the configuration shipped as the system's initial version,
// matching spec.md §6's defaults exactly.
func Default() MatchingConfig {
	return MatchingConfig{
		Version: 1,
		Weights: Weights{
			Distance:       0.30,
			Capability:     0.25,
			Availability:   0.20,
			AcceptanceRate: 0.15,
			Rating:         0.10,
		},
		DefaultRadiusMiles:         50,
		MaxRadiusMiles:             200,
		RadiusExpansionFactor:      0.25,
		MaxExpansionAttempts:       3,
		OfferTimeoutSeconds:        120,
		MaxConcurrentOffers:        3,
		ArrivalDeadlineMinutes:     30,
		ArrivalPollIntervalMinutes: 5,
	}
}

// Validate enforces the invariants spec.md §6 requires of any config
// snapshot: weights summing to ~1.0, and a sane radius ordering.
func (c MatchingConfig) Validate() error {
	if sum := c.Weights.Sum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("matchconfig: weights sum to %.4f, want 1.0 +/- 0.001", sum)
	}
	if c.MaxRadiusMiles < c.DefaultRadiusMiles {
		return fmt.Errorf("matchconfig: max radius %.1f is less than default radius %.1f", c.MaxRadiusMiles, c.DefaultRadiusMiles)
	}
	if c.MaxExpansionAttempts < 1 {
		return fmt.Errorf("matchconfig: max expansion attempts must be >= 1, got %d", c.MaxExpansionAttempts)
	}
	if c.OfferTimeoutSeconds <= 0 {
		return fmt.Errorf("matchconfig: offer timeout must be positive, got %d", c.OfferTimeoutSeconds)
	}
	if c.MaxConcurrentOffers < 1 {
		return fmt.Errorf("matchconfig: max concurrent offers must be >= 1, got %d", c.MaxConcurrentOffers)
	}
	return nil
}

// NextRadius returns the radius for the next expansion attempt, capped
// at MaxRadiusMiles (spec.md §4.3.1: r <- r*(1+expansionFactor)).
func (c MatchingConfig) NextRadius(current float64) float64 {
	next := current * (1 + c.RadiusExpansionFactor)
	if next > c.MaxRadiusMiles {
		return c.MaxRadiusMiles
	}
	return next
}
