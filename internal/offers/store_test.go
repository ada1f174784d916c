package offers_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/test/helpers"
)

func seedIncident(t *testing.T, incStore *incidents.Store) *incidents.Incident {
	t.Helper()
	inc := &incidents.Incident{
		ID:          uuid.New(),
		DriverID:    uuid.New(),
		ServiceType: incidents.ServiceTypeTire,
		Status:      incidents.StatusCreated,
		Latitude:    37.7749,
		Longitude:   -122.4194,
	}
	require.NoError(t, incStore.Create(t.Context(), inc))
	return inc
}

func newTestOffer(incidentID uuid.UUID, expiresAt time.Time) *offers.Offer {
	return &offers.Offer{
		ID:              uuid.New(),
		IncidentID:      incidentID,
		VendorID:        uuid.New(),
		Status:          offers.StatusPending,
		MatchScore:      0.8,
		EstimatedPayout: 42.5,
		Attempt:         1,
		ExpiresAt:       expiresAt,
	}
}

func TestOfferStore_CreateAndGet(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "offers", "incident_timeline", "incidents")
	incStore := incidents.NewStore(db)
	store := offers.NewStore(db)

	inc := seedIncident(t, incStore)
	o := newTestOffer(inc.ID, time.Now().Add(5*time.Minute))
	require.NoError(t, store.Create(t.Context(), o))

	got, err := store.Get(t.Context(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, offers.StatusPending, got.Status)
	assert.Equal(t, o.VendorID, got.VendorID)
}

func TestOfferStore_ListPendingForIncident(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "offers", "incident_timeline", "incidents")
	incStore := incidents.NewStore(db)
	store := offers.NewStore(db)

	inc := seedIncident(t, incStore)
	o1 := newTestOffer(inc.ID, time.Now().Add(5*time.Minute))
	o2 := newTestOffer(inc.ID, time.Now().Add(5*time.Minute))
	require.NoError(t, store.Create(t.Context(), o1))
	require.NoError(t, store.Create(t.Context(), o2))

	_, err := store.Terminate(t.Context(), o1.ID, offers.StatusAccepted, nil)
	require.NoError(t, err)

	pending, err := store.ListPendingForIncident(t.Context(), inc.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, o2.ID, pending[0].ID)
}

func TestOfferStore_Terminate_FailsWhenNotPending(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "offers", "incident_timeline", "incidents")
	incStore := incidents.NewStore(db)
	store := offers.NewStore(db)

	inc := seedIncident(t, incStore)
	o := newTestOffer(inc.ID, time.Now().Add(5*time.Minute))
	require.NoError(t, store.Create(t.Context(), o))

	_, err := store.Terminate(t.Context(), o.ID, offers.StatusAccepted, nil)
	require.NoError(t, err)

	_, err = store.Terminate(t.Context(), o.ID, offers.StatusDeclined, nil)
	require.Error(t, err)
}

func TestOfferStore_ExpireOverdue(t *testing.T) {
	db := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, db, "offers", "incident_timeline", "incidents")
	incStore := incidents.NewStore(db)
	store := offers.NewStore(db)

	inc := seedIncident(t, incStore)
	expired := newTestOffer(inc.ID, time.Now().Add(-1*time.Minute))
	fresh := newTestOffer(inc.ID, time.Now().Add(5*time.Minute))
	require.NoError(t, store.Create(t.Context(), expired))
	require.NoError(t, store.Create(t.Context(), fresh))

	out, err := store.ExpireOverdue(t.Context(), time.Now())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, expired.ID, out[0].ID)
	assert.Equal(t, offers.StatusExpired, out[0].Status)

	stillFresh, err := store.Get(t.Context(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, offers.StatusPending, stillFresh.Status)
}
