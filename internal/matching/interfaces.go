package matching

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
)

// GeoIndex provides vendor candidate lookups by radius. Satisfied by
// *vendors.GeoIndex in production and a fake in tests.
type GeoIndex interface {
	FindWithinRadius(ctx context.Context, lat, lon, radiusMiles float64) ([]uuid.UUID, error)
}

// Directory provides vendor profile hydration. Satisfied by
// *vendors.Directory in production and a fake in tests.
type Directory interface {
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*vendors.Vendor, error)
}
