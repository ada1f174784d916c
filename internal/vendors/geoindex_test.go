package vendors_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/roadside-dispatch/internal/vendors"
)

func newTestGeoIndex(t *testing.T) *vendors.GeoIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return vendors.NewGeoIndex(client)
}

func TestGeoIndex_FindWithinRadius(t *testing.T) {
	idx := newTestGeoIndex(t)

	near := uuid.New()
	far := uuid.New()

	// San Francisco coverage center.
	require.NoError(t, idx.Upsert(t.Context(), near, 37.7749, -122.4194))
	// Los Angeles, well outside a 25mi radius of SF.
	require.NoError(t, idx.Upsert(t.Context(), far, 34.0522, -118.2437))

	results, err := idx.FindWithinRadius(t.Context(), 37.7750, -122.4190, 25)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool)
	for _, id := range results {
		ids[id] = true
	}
	assert.True(t, ids[near])
	assert.False(t, ids[far])
}

func TestGeoIndex_Remove(t *testing.T) {
	idx := newTestGeoIndex(t)

	vendorID := uuid.New()
	require.NoError(t, idx.Upsert(t.Context(), vendorID, 37.7749, -122.4194))
	require.NoError(t, idx.Remove(t.Context(), vendorID))

	results, err := idx.FindWithinRadius(t.Context(), 37.7749, -122.4194, 25)
	require.NoError(t, err)
	for _, id := range results {
		assert.NotEqual(t, vendorID, id)
	}
}

func TestDistanceMiles(t *testing.T) {
	d := vendors.DistanceMiles(37.7749, -122.4194, 37.7749, -122.4194)
	assert.InDelta(t, 0, d, 0.0001)

	d = vendors.DistanceMiles(37.7749, -122.4194, 34.0522, -118.2437)
	assert.Greater(t, d, 300.0)
}
