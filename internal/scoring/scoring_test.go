package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
)

func baseIncident() *incidents.Incident {
	return &incidents.Incident{
		ID:          uuid.New(),
		ServiceType: incidents.ServiceTypeTire,
		Latitude:    37.7749,
		Longitude:   -122.4194,
	}
}

func baseVendor() *vendors.Vendor {
	return &vendors.Vendor{
		ID:                uuid.New(),
		Capabilities:       []vendors.Capability{vendors.CapabilityTireRepair},
		CoverageLatitude:   37.7749,
		CoverageLongitude:  -122.4194,
		Availability:       vendors.AvailabilityAvailable,
		Metrics:            vendors.Metrics{AcceptanceRate: 0.9, Rating: 4.5},
	}
}

func TestScore_CoLocatedFullyAvailableVendor(t *testing.T) {
	v := baseVendor()
	inc := baseIncident()
	cfg := matchconfig.Default()

	result := Score(v, inc, cfg)

	if result.Breakdown.Distance != 1.0 {
		t.Errorf("expected distance factor 1.0 for co-located vendor, got %v", result.Breakdown.Distance)
	}
	if result.Breakdown.Capability != 1.0 {
		t.Errorf("expected capability factor 1.0, got %v", result.Breakdown.Capability)
	}
	if result.Breakdown.Availability != 1.0 {
		t.Errorf("expected availability factor 1.0, got %v", result.Breakdown.Availability)
	}
	if result.Score <= 0 || result.Score > 1 {
		t.Errorf("score out of range: %v", result.Score)
	}
}

func TestScore_MissingCapabilityScoresZeroOnThatFactor(t *testing.T) {
	v := baseVendor()
	v.Capabilities = []vendors.Capability{vendors.CapabilityTowing}
	inc := baseIncident()
	cfg := matchconfig.Default()

	result := Score(v, inc, cfg)
	if result.Breakdown.Capability != 0 {
		t.Errorf("expected capability factor 0, got %v", result.Breakdown.Capability)
	}
}

func TestScore_OfflineVendorScoresZeroAvailability(t *testing.T) {
	v := baseVendor()
	v.Availability = vendors.AvailabilityOffline
	inc := baseIncident()
	cfg := matchconfig.Default()

	result := Score(v, inc, cfg)
	if result.Breakdown.Availability != 0 {
		t.Errorf("expected availability factor 0, got %v", result.Breakdown.Availability)
	}
}

func TestScore_DistanceFactorDecaysWithDistance(t *testing.T) {
	near := baseVendor()
	far := baseVendor()
	far.CoverageLatitude = 34.0522
	far.CoverageLongitude = -118.2437 // Los Angeles, ~350mi from SF

	inc := baseIncident()
	cfg := matchconfig.Default()

	nearResult := Score(near, inc, cfg)
	farResult := Score(far, inc, cfg)

	if farResult.Breakdown.Distance >= nearResult.Breakdown.Distance {
		t.Errorf("expected farther vendor to have lower distance factor: near=%v far=%v",
			nearResult.Breakdown.Distance, farResult.Breakdown.Distance)
	}
	if farResult.Breakdown.Distance < 0 {
		t.Errorf("distance factor must never be negative, got %v", farResult.Breakdown.Distance)
	}
}

func TestRank_OrdersByScoreDescending(t *testing.T) {
	inc := baseIncident()
	cfg := matchconfig.Default()

	high := baseVendor()
	high.Metrics.Rating = 5.0

	low := baseVendor()
	low.Metrics.Rating = 1.0

	results := []Result{Score(low, inc, cfg), Score(high, inc, cfg)}
	Rank(results)

	if results[0].Vendor.ID != high.ID {
		t.Errorf("expected higher-rated vendor ranked first")
	}
}

func TestRank_TiesBrokenByDistanceThenAcceptanceThenID(t *testing.T) {
	inc := baseIncident()
	cfg := matchconfig.Default()

	a := baseVendor()
	b := baseVendor()
	// Force identical score and distance factor; break on acceptance rate.
	a.Metrics.AcceptanceRate = 0.95
	b.Metrics.AcceptanceRate = 0.50
	a.Metrics.Rating, b.Metrics.Rating = 4.0, 4.0

	ra := Score(a, inc, cfg)
	rb := Score(b, inc, cfg)
	rb.Score = ra.Score
	results := []Result{rb, ra}
	Rank(results)

	if results[0].Vendor.ID != a.ID {
		t.Errorf("expected vendor with higher acceptance rate ranked first on tie")
	}
}

func TestEstimatedPayout_ZeroWhenNoPricingForCapability(t *testing.T) {
	v := baseVendor()
	inc := baseIncident()
	if got := EstimatedPayout(v, inc, 10); got != 0 {
		t.Errorf("expected 0 payout with no pricing entries, got %v", got)
	}
}

func TestEstimatedPayout_UsesBestMatchingCapabilityPrice(t *testing.T) {
	v := baseVendor()
	v.Pricing = []vendors.Pricing{
		{Capability: vendors.CapabilityTireRepair, BasePrice: 50, PerMileRate: 2},
	}
	inc := baseIncident()
	got := EstimatedPayout(v, inc, 10)
	if got != 70 {
		t.Errorf("EstimatedPayout = %v, want 70", got)
	}
}
