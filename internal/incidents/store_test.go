package incidents_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/test/helpers"
)

func newTestIncident() *incidents.Incident {
	return &incidents.Incident{
		ID:          uuid.New(),
		DriverID:    uuid.New(),
		ServiceType: incidents.ServiceTypeTire,
		Status:      incidents.StatusCreated,
		Latitude:    37.7749,
		Longitude:   -122.4194,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	got, err := store.Get(t.Context(), inc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, incidents.StatusCreated, got.Status)
	assert.Equal(t, inc.DriverID, got.DriverID)
}

func TestStore_Get_NotFound(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	got, err := store.Get(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestStore_ConditionalAssign_SingleWinner is the test the at-most-one-
// winner guarantee rests on: many concurrent callers race to assign the
// same incident, and exactly one may observe won == true.
func TestStore_ConditionalAssign_SingleWinner(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	const racers = 20
	vendorIDs := make([]uuid.UUID, racers)
	for i := range vendorIDs {
		vendorIDs[i] = uuid.New()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int

	for _, vendorID := range vendorIDs {
		wg.Add(1)
		go func(vendorID uuid.UUID) {
			defer wg.Done()
			won, err := store.ConditionalAssign(t.Context(), inc.ID, vendorID)
			require.NoError(t, err)
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(vendorID)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one caller must win the conditional assignment")

	final, err := store.Get(t.Context(), inc.ID)
	require.NoError(t, err)
	require.NotNil(t, final.AssignedVendorID)
	assert.Equal(t, incidents.StatusVendorAssigned, final.Status)
}

func TestStore_ConditionalAssign_FailsOnceAlreadyAssigned(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	firstVendor := uuid.New()
	won, err := store.ConditionalAssign(t.Context(), inc.ID, firstVendor)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.ConditionalAssign(t.Context(), inc.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, won, "a second assign attempt must not win once the incident is already assigned")
}

func TestStore_Transition_GuardsAgainstStaleFromStatus(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	err := store.Transition(t.Context(), inc.ID, incidents.StatusCreated, incidents.StatusCancelled, "driver", "changed my mind")
	require.NoError(t, err)

	// Retrying against the now-stale "created" from-status must fail.
	err = store.Transition(t.Context(), inc.ID, incidents.StatusCreated, incidents.StatusCancelled, "driver", "retry")
	require.Error(t, err)

	timeline, err := store.Timeline(t.Context(), inc.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, incidents.StatusCancelled, timeline[0].To)
}

func TestStore_RevertToCreated(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	vendorID := uuid.New()
	won, err := store.ConditionalAssign(t.Context(), inc.ID, vendorID)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, store.RevertToCreated(t.Context(), inc.ID, vendorID))

	reverted, err := store.Get(t.Context(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, incidents.StatusCreated, reverted.Status)
	assert.Nil(t, reverted.AssignedVendorID)
	assert.Contains(t, reverted.ExcludedVendors, vendorID)
}

func TestStore_RevertToCreated_NoOpIfIncidentMovedOn(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	inc := newTestIncident()
	require.NoError(t, store.Create(t.Context(), inc))

	vendorID := uuid.New()
	won, err := store.ConditionalAssign(t.Context(), inc.ID, vendorID)
	require.NoError(t, err)
	require.True(t, won)

	// Incident progresses past vendor_assigned before the revert call runs.
	require.NoError(t, store.Transition(t.Context(), inc.ID, incidents.StatusVendorAssigned, incidents.StatusVendorArrived, "vendor", "arrived"))

	err = store.RevertToCreated(t.Context(), inc.ID, vendorID)
	require.Error(t, err)

	unchanged, err := store.Get(t.Context(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, incidents.StatusVendorArrived, unchanged.Status)
}

func TestStore_ListOverdueAssigned(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "incident_timeline", "offers", "incidents")
	store := incidents.NewStore(db)

	overdue := newTestIncident()
	require.NoError(t, store.Create(t.Context(), overdue))
	_, err := store.ConditionalAssign(t.Context(), overdue.ID, uuid.New())
	require.NoError(t, err)

	recent := newTestIncident()
	require.NoError(t, store.Create(t.Context(), recent))
	_, err = store.ConditionalAssign(t.Context(), recent.ID, uuid.New())
	require.NoError(t, err)

	cutoff := time.Now().Add(1 * time.Minute)
	results, err := store.ListOverdueAssigned(t.Context(), cutoff)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool)
	for _, r := range results {
		ids[r.ID] = true
	}
	assert.True(t, ids[overdue.ID])
	assert.True(t, ids[recent.ID])
}
