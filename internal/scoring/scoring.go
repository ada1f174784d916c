// Package scoring implements the pure, deterministic scoring function
// that maps (vendor, incident, weights) to a score in [0,1] and a
// five-field breakdown. It has no side effects and no I/O.
package scoring

import (
	"math"
	"sort"

	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/geo"
)

// clamp01 restricts x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// requiredCapabilities returns the capability set that satisfies an
// incident's service type.
func requiredCapabilities(serviceType incidents.ServiceType) []vendors.Capability {
	names := incidents.RequiredCapabilitiesByServiceType[serviceType]
	caps := make([]vendors.Capability, len(names))
	for i, n := range names {
		caps[i] = vendors.Capability(n)
	}
	return caps
}

// Result is the output of scoring one vendor against one incident:
// the final score and its breakdown, plus the geodesic distance used to
// derive the distance factor (kept for tie-breaking and for the
// estimated-payout calculation downstream).
type Result struct {
	Vendor     *vendors.Vendor
	Score      float64
	Breakdown  offers.Breakdown
	DistanceMi float64
}

// Score computes the weighted multi-factor score for one vendor against
// one incident under the given matching configuration (spec.md §4.1).
// A vendor lacking the required capability, or not currently available,
// scores 0 on that factor and the caller is expected to filter it out
// before ranking — Score itself does not filter, so breakdowns remain
// inspectable even for zero-scoring vendors.
func Score(v *vendors.Vendor, inc *incidents.Incident, cfg matchconfig.MatchingConfig) Result {
	distanceMi := geo.HaversineMiles(v.CoverageLatitude, v.CoverageLongitude, inc.Latitude, inc.Longitude)

	distanceFactor := 0.0
	if cfg.MaxRadiusMiles > 0 {
		distanceFactor = math.Max(0, 1-distanceMi/cfg.MaxRadiusMiles)
	}

	capabilityFactor := 0.0
	if v.HasCapability(requiredCapabilities(inc.ServiceType)...) {
		capabilityFactor = 1.0
	}

	availabilityFactor := 0.0
	if v.IsAvailable() {
		availabilityFactor = 1.0
	}

	acceptanceFactor := clamp01(v.Metrics.AcceptanceRate)
	ratingFactor := clamp01(v.Metrics.Rating / 5.0)

	breakdown := offers.Breakdown{
		Distance:       distanceFactor,
		Capability:     capabilityFactor,
		Availability:   availabilityFactor,
		AcceptanceRate: acceptanceFactor,
		Rating:         ratingFactor,
	}

	score := cfg.Weights.Distance*distanceFactor +
		cfg.Weights.Capability*capabilityFactor +
		cfg.Weights.Availability*availabilityFactor +
		cfg.Weights.AcceptanceRate*acceptanceFactor +
		cfg.Weights.Rating*ratingFactor

	return Result{
		Vendor:     v,
		Score:      clamp01(score),
		Breakdown:  breakdown,
		DistanceMi: distanceMi,
	}
}

// EstimatedPayout computes the winning vendor's own price for the
// incident's service type at the scored distance (spec.md §4.1): 0 if
// the vendor does not price that capability.
func EstimatedPayout(v *vendors.Vendor, inc *incidents.Incident, distanceMi float64) float64 {
	caps := requiredCapabilities(inc.ServiceType)
	best := 0.0
	for _, c := range caps {
		if p := v.PriceFor(c, distanceMi); p > best {
			best = p
		}
	}
	return math.Round(best)
}

// Rank sorts scored results descending by score, breaking ties by (a)
// higher distance factor, then (b) higher acceptance rate, then (c)
// lexicographic vendor identifier — exactly the tie-break chain
// spec.md §4.1 specifies, so ranking is fully deterministic.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Breakdown.Distance != b.Breakdown.Distance {
			return a.Breakdown.Distance > b.Breakdown.Distance
		}
		if a.Breakdown.AcceptanceRate != b.Breakdown.AcceptanceRate {
			return a.Breakdown.AcceptanceRate > b.Breakdown.AcceptanceRate
		}
		return a.Vendor.ID.String() < b.Vendor.ID.String()
	})
}
