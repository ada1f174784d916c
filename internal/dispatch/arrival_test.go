package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/scoring"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/clock"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrivalMonitor_ScanOnce_RevertsOverdueAssignment(t *testing.T) {
	timedOutVendor := testVendor(vendors.CapabilityTireRepair)
	rescueVendor := testVendor(vendors.CapabilityTireRepair)

	inc := testIncidentAt(37.7749, -122.4194)
	inc.Status = incidents.StatusVendorAssigned
	inc.AssignedVendorID = &timedOutVendor.ID
	overdueAt := time.Now().Add(-45 * time.Minute)
	inc.AssignedAt = &overdueAt

	incStore := newFakeIncidentStore(inc)
	offerStore := newFakeOfferStore()
	vendorDir := newFakeVendorDirectory()
	matcher := &fakeMatcher{results: [][]scoring.Result{{resultFor(rescueVendor, 0.7)}}}
	pub := newFakePublisher()

	cfg := matchconfig.Default()
	engine := NewEngine(incStore, vendorDir, offerStore, matcher, &fakeConfigProvider{cfg: cfg}, pub, clock.NewFake(time.Now()))

	monitor := NewArrivalMonitor(engine, incStore, vendorDir)
	monitor.scanOnce(context.Background())

	assert.Contains(t, pub.types(), eventbus.SubjectVendorTimeout)
	availability, ok := vendorDir.availabilityOf(timedOutVendor.ID)
	assert.True(t, ok)
	assert.Equal(t, vendors.AvailabilityAvailable, availability)

	// redispatch runs in its own goroutine; give it a moment to re-enter
	// the attempt loop and create a fresh offer for the rescue vendor.
	require.Eventually(t, func() bool {
		return matcher.callCount() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestArrivalMonitor_ScanOnce_IgnoresIncidentsWithinDeadline(t *testing.T) {
	vendor := testVendor(vendors.CapabilityTireRepair)
	inc := testIncidentAt(37.7749, -122.4194)
	inc.Status = incidents.StatusVendorAssigned
	inc.AssignedVendorID = &vendor.ID
	recent := time.Now().Add(-5 * time.Minute)
	inc.AssignedAt = &recent

	incStore := newFakeIncidentStore(inc)
	offerStore := newFakeOfferStore()
	vendorDir := newFakeVendorDirectory()
	matcher := &fakeMatcher{}
	pub := newFakePublisher()

	cfg := matchconfig.Default()
	engine := NewEngine(incStore, vendorDir, offerStore, matcher, &fakeConfigProvider{cfg: cfg}, pub, clock.NewFake(time.Now()))

	monitor := NewArrivalMonitor(engine, incStore, vendorDir)
	monitor.scanOnce(context.Background())

	assert.NotContains(t, pub.types(), eventbus.SubjectVendorTimeout)
	final := incStore.snapshot(inc.ID)
	assert.Equal(t, incidents.StatusVendorAssigned, final.Status)
}
