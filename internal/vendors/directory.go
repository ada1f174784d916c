package vendors

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory is the Postgres-backed vendor profile and metrics store.
// Capability/availability/pricing are read here; geospatial candidate
// selection is delegated to a GeoIndex (see geoindex.go) so the Matcher
// never has to know how "vendors within radius" is actually answered.
type Directory struct {
	db *pgxpool.Pool
}

// NewDirectory creates a vendor directory backed by the given pool.
func NewDirectory(db *pgxpool.Pool) *Directory {
	return &Directory{db: db}
}

// Get retrieves a vendor profile by id, or (nil, nil) if none exists.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*Vendor, error) {
	const query = `
		SELECT id, name, capabilities, coverage_latitude, coverage_longitude,
			   coverage_radius_miles, availability, active_incident_id,
			   priority_tier, created_at, updated_at,
			   COALESCE(acceptance_rate, 0.8) AS acceptance_rate,
			   COALESCE(rating, 4.0) AS rating,
			   COALESCE(completion_rate, 0.9) AS completion_rate
		FROM vendors
		WHERE id = $1
	`

	v := &Vendor{}
	err := d.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Capabilities, &v.CoverageLatitude, &v.CoverageLongitude,
		&v.CoverageRadiusMi, &v.Availability, &v.ActiveIncidentID,
		&v.PriorityTier, &v.CreatedAt, &v.UpdatedAt,
		&v.Metrics.AcceptanceRate, &v.Metrics.Rating, &v.Metrics.CompletionRate,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor %s: %w", id, err)
	}

	pricing, err := d.getPricing(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Pricing = pricing

	return v, nil
}

// GetMany retrieves vendor profiles for a batch of ids, skipping any that
// no longer exist. Used by the geo-index path, which returns bare ids
// from the Redis-side search before profile/metrics hydration.
func (d *Directory) GetMany(ctx context.Context, ids []uuid.UUID) ([]*Vendor, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, name, capabilities, coverage_latitude, coverage_longitude,
			   coverage_radius_miles, availability, active_incident_id,
			   priority_tier, created_at, updated_at,
			   COALESCE(acceptance_rate, 0.8) AS acceptance_rate,
			   COALESCE(rating, 4.0) AS rating,
			   COALESCE(completion_rate, 0.9) AS completion_rate
		FROM vendors
		WHERE id = ANY($1)
	`

	rows, err := d.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get vendors: %w", err)
	}
	defer rows.Close()

	var out []*Vendor
	for rows.Next() {
		v := &Vendor{}
		if err := rows.Scan(
			&v.ID, &v.Name, &v.Capabilities, &v.CoverageLatitude, &v.CoverageLongitude,
			&v.CoverageRadiusMi, &v.Availability, &v.ActiveIncidentID,
			&v.PriorityTier, &v.CreatedAt, &v.UpdatedAt,
			&v.Metrics.AcceptanceRate, &v.Metrics.Rating, &v.Metrics.CompletionRate,
		); err != nil {
			return nil, fmt.Errorf("scan vendor row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendor rows: %w", err)
	}

	pricingByVendor, err := d.getPricingForMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, v := range out {
		v.Pricing = pricingByVendor[v.ID]
	}

	return out, nil
}

func (d *Directory) getPricing(ctx context.Context, vendorID uuid.UUID) ([]Pricing, error) {
	const query = `
		SELECT capability, base_price, per_mile_rate
		FROM vendor_pricing
		WHERE vendor_id = $1
	`
	rows, err := d.db.Query(ctx, query, vendorID)
	if err != nil {
		return nil, fmt.Errorf("get vendor pricing %s: %w", vendorID, err)
	}
	defer rows.Close()

	var out []Pricing
	for rows.Next() {
		var p Pricing
		if err := rows.Scan(&p.Capability, &p.BasePrice, &p.PerMileRate); err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *Directory) getPricingForMany(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID][]Pricing, error) {
	const query = `
		SELECT vendor_id, capability, base_price, per_mile_rate
		FROM vendor_pricing
		WHERE vendor_id = ANY($1)
	`
	rows, err := d.db.Query(ctx, query, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("get vendor pricing: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Pricing)
	for rows.Next() {
		var vendorID uuid.UUID
		var p Pricing
		if err := rows.Scan(&vendorID, &p.Capability, &p.BasePrice, &p.PerMileRate); err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		out[vendorID] = append(out[vendorID], p)
	}
	return out, rows.Err()
}

// SetAvailability updates a vendor's availability and, when transitioning
// to busy, the incident it is now occupied with. Called by the dispatch
// engine after a successful assignment and again by the arrival monitor
// on vendor timeout.
func (d *Directory) SetAvailability(ctx context.Context, vendorID uuid.UUID, availability Availability, activeIncidentID *uuid.UUID) error {
	const query = `
		UPDATE vendors
		SET availability = $1, active_incident_id = $2, updated_at = now()
		WHERE id = $3
	`
	_, err := d.db.Exec(ctx, query, availability, activeIncidentID, vendorID)
	if err != nil {
		return fmt.Errorf("set vendor availability %s: %w", vendorID, err)
	}
	return nil
}

// RecordOfferOutcome nudges a vendor's rolling acceptance rate after an
// offer reaches a terminal state, using a simple exponential moving
// average (alpha = 0.2) so a single outcome does not dominate a vendor
// with a long history.
func (d *Directory) RecordOfferOutcome(ctx context.Context, vendorID uuid.UUID, accepted bool) error {
	outcome := 0.0
	if accepted {
		outcome = 1.0
	}
	const query = `
		UPDATE vendors
		SET acceptance_rate = COALESCE(acceptance_rate, 0.8) * 0.8 + $1 * 0.2,
			updated_at = now()
		WHERE id = $2
	`
	_, err := d.db.Exec(ctx, query, outcome, vendorID)
	if err != nil {
		return fmt.Errorf("record offer outcome for vendor %s: %w", vendorID, err)
	}
	return nil
}
