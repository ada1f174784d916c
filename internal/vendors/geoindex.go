package vendors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/richxcame/roadside-dispatch/pkg/geo"
)

const vendorGeoIndexKey = "vendors:geo:index"

// GeoIndex answers "vendors within radius R (miles) of point P" against a
// Redis GEO set. Per spec.md's own non-goal, the Matcher never sees this
// representation directly — it only calls FindWithinRadius.
type GeoIndex struct {
	redis *redis.Client
}

// NewGeoIndex wraps a Redis client for vendor geospatial indexing.
func NewGeoIndex(client *redis.Client) *GeoIndex {
	return &GeoIndex{redis: client}
}

// Upsert places (or moves) a vendor's coverage center in the geo index.
func (g *GeoIndex) Upsert(ctx context.Context, vendorID uuid.UUID, lat, lon float64) error {
	if err := g.redis.GeoAdd(ctx, vendorGeoIndexKey, &redis.GeoLocation{
		Name:      vendorID.String(),
		Longitude: lon,
		Latitude:  lat,
	}).Err(); err != nil {
		return fmt.Errorf("upsert vendor geo index for %s: %w", vendorID, err)
	}
	return nil
}

// Remove drops a vendor from the geo index, e.g. when it goes permanently
// offline or is deleted.
func (g *GeoIndex) Remove(ctx context.Context, vendorID uuid.UUID) error {
	if err := g.redis.ZRem(ctx, vendorGeoIndexKey, vendorID.String()).Err(); err != nil {
		return fmt.Errorf("remove vendor %s from geo index: %w", vendorID, err)
	}
	return nil
}

// FindWithinRadius returns the ids of vendors whose coverage center lies
// within radiusMiles of (lat, lon), boundary inclusive (distance ≤
// radius, per the spec's boundary-behavior requirement). Redis'
// GEOSEARCH already performs this inclusively using a geodesic
// calculation equivalent to the Haversine formula this core otherwise
// uses directly, so no secondary exact-distance pass is required here.
func (g *GeoIndex) FindWithinRadius(ctx context.Context, lat, lon, radiusMiles float64) ([]uuid.UUID, error) {
	results, err := g.redis.GeoSearchLocation(ctx, vendorGeoIndexKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusMiles,
			RadiusUnit: "mi",
			Sort:       "ASC",
			Count:      500,
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch vendors within %.2fmi: %w", radiusMiles, err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.Name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DistanceMiles is a convenience for callers that already have two
// coordinate pairs in hand (e.g. the Scoring Engine) and want the exact
// geodesic distance rather than a GEOSEARCH round trip.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.HaversineMiles(lat1, lon1, lat2, lon2)
}
