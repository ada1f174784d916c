package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/internal/scoring"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/common"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
)

// fakeIncidentStore is an in-memory stand-in for incidents.Store, good
// enough to exercise the same conditional-write semantics the real
// Postgres-backed store enforces.
type fakeIncidentStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*incidents.Incident

	getErr    error
	assignErr error
}

func newFakeIncidentStore(incs ...*incidents.Incident) *fakeIncidentStore {
	m := make(map[uuid.UUID]*incidents.Incident, len(incs))
	for _, inc := range incs {
		m[inc.ID] = inc
	}
	return &fakeIncidentStore{byID: m}
}

func (f *fakeIncidentStore) Get(ctx context.Context, id uuid.UUID) (*incidents.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	inc, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (f *fakeIncidentStore) Create(ctx context.Context, inc *incidents.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[inc.ID] = inc
	return nil
}

func (f *fakeIncidentStore) ConditionalAssign(ctx context.Context, incidentID, vendorID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return false, f.assignErr
	}
	inc, ok := f.byID[incidentID]
	if !ok {
		return false, fmt.Errorf("incident %s not found", incidentID)
	}
	if inc.Status != incidents.PreconditionStatusForAssignment || inc.AssignedVendorID != nil {
		return false, nil
	}
	now := time.Now()
	inc.Status = incidents.StatusVendorAssigned
	inc.AssignedVendorID = &vendorID
	inc.AssignedAt = &now
	return true, nil
}

func (f *fakeIncidentStore) Transition(ctx context.Context, incidentID uuid.UUID, from, to incidents.Status, actor, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.byID[incidentID]
	if !ok {
		return fmt.Errorf("incident %s not found", incidentID)
	}
	if inc.Status != from {
		return common.NewConflictError(fmt.Sprintf("incident %s is not in status %s", incidentID, from))
	}
	inc.Status = to
	return nil
}

func (f *fakeIncidentStore) RevertToCreated(ctx context.Context, incidentID, timedOutVendorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.byID[incidentID]
	if !ok {
		return fmt.Errorf("incident %s not found", incidentID)
	}
	inc.Status = incidents.StatusCreated
	inc.AssignedVendorID = nil
	inc.AssignedAt = nil
	inc.ExcludedVendors = append(inc.ExcludedVendors, timedOutVendorID)
	return nil
}

func (f *fakeIncidentStore) ListOverdueAssigned(ctx context.Context, cutoff time.Time) ([]*incidents.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*incidents.Incident
	for _, inc := range f.byID {
		overdue := (inc.Status == incidents.StatusVendorAssigned || inc.Status == incidents.StatusVendorEnRoute) &&
			inc.AssignedAt != nil && !inc.AssignedAt.After(cutoff)
		if overdue {
			cp := *inc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIncidentStore) snapshot(id uuid.UUID) *incidents.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.byID[id]
	if !ok {
		return nil
	}
	cp := *inc
	return &cp
}

// fakeOfferStore is an in-memory stand-in for offers.Store.
type fakeOfferStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*offers.Offer
	onCreate func(*offers.Offer)
}

func newFakeOfferStore() *fakeOfferStore {
	return &fakeOfferStore{byID: make(map[uuid.UUID]*offers.Offer)}
}

func (f *fakeOfferStore) Create(ctx context.Context, o *offers.Offer) error {
	f.mu.Lock()
	f.byID[o.ID] = o
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook(o)
	}
	return nil
}

func (f *fakeOfferStore) Get(ctx context.Context, id uuid.UUID) (*offers.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOfferStore) ListPendingForIncident(ctx context.Context, incidentID uuid.UUID) ([]*offers.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*offers.Offer
	for _, o := range f.byID {
		if o.IncidentID == incidentID && o.Status == offers.StatusPending {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOfferStore) Terminate(ctx context.Context, id uuid.UUID, newStatus offers.Status, reason *string) (*offers.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("offer %s not found", id)
	}
	if o.Status != offers.StatusPending {
		return nil, common.NewConflictError(fmt.Sprintf("offer %s is not pending", id))
	}
	o.Status = newStatus
	o.DeclineReason = reason
	return o, nil
}

// fakeVendorDirectory is an in-memory stand-in for vendors.Directory.
type fakeVendorDirectory struct {
	mu           sync.Mutex
	availability map[uuid.UUID]vendors.Availability
	outcomes     []bool
}

func newFakeVendorDirectory() *fakeVendorDirectory {
	return &fakeVendorDirectory{availability: make(map[uuid.UUID]vendors.Availability)}
}

func (f *fakeVendorDirectory) SetAvailability(ctx context.Context, vendorID uuid.UUID, availability vendors.Availability, activeIncidentID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability[vendorID] = availability
	return nil
}

func (f *fakeVendorDirectory) RecordOfferOutcome(ctx context.Context, vendorID uuid.UUID, accepted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, accepted)
	return nil
}

func (f *fakeVendorDirectory) availabilityOf(id uuid.UUID) (vendors.Availability, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.availability[id]
	return a, ok
}

// fakeMatcher returns a pre-scripted slice of results for each successive
// call, repeating the last entry once the script runs out.
type fakeMatcher struct {
	mu      sync.Mutex
	radii   []float64
	results [][]scoring.Result
	err     error
}

func (f *fakeMatcher) MatchOnce(ctx context.Context, inc *incidents.Incident, radiusMiles float64, cfg matchconfig.MatchingConfig) ([]scoring.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.radii = append(f.radii, radiusMiles)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	idx := len(f.radii) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *fakeMatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.radii)
}

// fakeConfigProvider always answers with a fixed snapshot.
type fakeConfigProvider struct {
	cfg matchconfig.MatchingConfig
}

func (f *fakeConfigProvider) Current(ctx context.Context) (matchconfig.MatchingConfig, error) {
	return f.cfg, nil
}

// fakePublisher records every event it is handed.
type fakePublisher struct {
	mu     sync.Mutex
	events []*eventbus.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func (f *fakePublisher) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func testVendor(capability vendors.Capability) *vendors.Vendor {
	return &vendors.Vendor{
		ID:                uuid.New(),
		Capabilities:       []vendors.Capability{capability},
		CoverageLatitude:   37.7749,
		CoverageLongitude:  -122.4194,
		Availability:       vendors.AvailabilityAvailable,
		Metrics:            vendors.Metrics{AcceptanceRate: 0.9, Rating: 4.5},
	}
}

func testIncidentAt(lat, lon float64) *incidents.Incident {
	return &incidents.Incident{
		ID:          uuid.New(),
		DriverID:    uuid.New(),
		ServiceType: incidents.ServiceTypeTire,
		Status:      incidents.StatusCreated,
		Latitude:    lat,
		Longitude:   lon,
	}
}

func resultFor(v *vendors.Vendor, score float64) scoring.Result {
	return scoring.Result{
		Vendor:     v,
		Score:      score,
		Breakdown:  offers.Breakdown{Distance: score, Capability: 1, Availability: 1, AcceptanceRate: 0.9, Rating: 0.9},
		DistanceMi: 1.0,
	}
}
