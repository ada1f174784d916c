package matching

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
)

type fakeGeoIndex struct {
	ids []uuid.UUID
	err error
}

func (f *fakeGeoIndex) FindWithinRadius(ctx context.Context, lat, lon, radiusMiles float64) ([]uuid.UUID, error) {
	return f.ids, f.err
}

type fakeDirectory struct {
	byID map[uuid.UUID]*vendors.Vendor
}

func (f *fakeDirectory) GetMany(ctx context.Context, ids []uuid.UUID) ([]*vendors.Vendor, error) {
	out := make([]*vendors.Vendor, 0, len(ids))
	for _, id := range ids {
		if v, ok := f.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func newVendor(capable bool, available bool) *vendors.Vendor {
	v := &vendors.Vendor{
		ID:                uuid.New(),
		CoverageLatitude:  37.7749,
		CoverageLongitude: -122.4194,
		Availability:      vendors.AvailabilityOffline,
		Metrics:           vendors.Metrics{AcceptanceRate: 0.8, Rating: 4.0},
	}
	if capable {
		v.Capabilities = []vendors.Capability{vendors.CapabilityTireRepair}
	}
	if available {
		v.Availability = vendors.AvailabilityAvailable
	}
	return v
}

func testIncident() *incidents.Incident {
	return &incidents.Incident{
		ID:          uuid.New(),
		ServiceType: incidents.ServiceTypeTire,
		Latitude:    37.7749,
		Longitude:   -122.4194,
	}
}

func TestMatchOnce_FiltersIneligibleAndRanksRest(t *testing.T) {
	eligible := newVendor(true, true)
	noCapability := newVendor(false, true)
	unavailable := newVendor(true, false)

	dir := &fakeDirectory{byID: map[uuid.UUID]*vendors.Vendor{
		eligible.ID:     eligible,
		noCapability.ID: noCapability,
		unavailable.ID:  unavailable,
	}}
	geo := &fakeGeoIndex{ids: []uuid.UUID{eligible.ID, noCapability.ID, unavailable.ID}}

	m := NewMatcher(geo, dir)
	results, err := m.MatchOnce(context.Background(), testIncident(), 50, matchconfig.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 eligible vendor, got %d", len(results))
	}
	if results[0].Vendor.ID != eligible.ID {
		t.Errorf("expected eligible vendor to survive filtering")
	}
}

func TestMatchOnce_NoCandidatesReturnsEmptyNotError(t *testing.T) {
	geo := &fakeGeoIndex{ids: nil}
	dir := &fakeDirectory{byID: map[uuid.UUID]*vendors.Vendor{}}

	m := NewMatcher(geo, dir)
	results, err := m.MatchOnce(context.Background(), testIncident(), 50, matchconfig.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestMatchOnce_TruncatesToMaxConcurrentOffers(t *testing.T) {
	cfg := matchconfig.Default()
	cfg.MaxConcurrentOffers = 2

	ids := make([]uuid.UUID, 0, 5)
	byID := make(map[uuid.UUID]*vendors.Vendor, 5)
	for i := 0; i < 5; i++ {
		v := newVendor(true, true)
		ids = append(ids, v.ID)
		byID[v.ID] = v
	}

	geo := &fakeGeoIndex{ids: ids}
	dir := &fakeDirectory{byID: byID}

	m := NewMatcher(geo, dir)
	results, err := m.MatchOnce(context.Background(), testIncident(), 50, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results truncated to 2, got %d", len(results))
	}
}

func TestMatchOnce_ExcludesVendorsOnIncident(t *testing.T) {
	v1 := newVendor(true, true)
	v2 := newVendor(true, true)

	geo := &fakeGeoIndex{ids: []uuid.UUID{v1.ID, v2.ID}}
	dir := &fakeDirectory{byID: map[uuid.UUID]*vendors.Vendor{v1.ID: v1, v2.ID: v2}}

	inc := testIncident()
	inc.ExcludedVendors = []uuid.UUID{v1.ID}

	m := NewMatcher(geo, dir)
	results, err := m.MatchOnce(context.Background(), inc, 50, matchconfig.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Vendor.ID != v2.ID {
		t.Fatalf("expected only non-excluded vendor to remain, got %+v", results)
	}
}

func TestMatchOnce_SkipsVendorsAlreadyOnActiveIncident(t *testing.T) {
	busy := newVendor(true, true)
	active := uuid.New()
	busy.ActiveIncidentID = &active

	geo := &fakeGeoIndex{ids: []uuid.UUID{busy.ID}}
	dir := &fakeDirectory{byID: map[uuid.UUID]*vendors.Vendor{busy.ID: busy}}

	m := NewMatcher(geo, dir)
	results, err := m.MatchOnce(context.Background(), testIncident(), 50, matchconfig.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected vendor with an active incident to be skipped, got %d results", len(results))
	}
}
