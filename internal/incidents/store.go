package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/roadside-dispatch/pkg/common"
)

// Store is the Postgres-backed Incident Store. ConditionalAssign is the
// single linearization point of the whole system: it is the only method
// that sets assignedVendorRef, and RevertToCreated (the VendorTimeout
// path) is the only other method that touches that column, to clear it.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates an incident store backed by the given pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Get retrieves an incident by id, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	const query = `
		SELECT id, driver_id, service_type, status, latitude, longitude,
			   priority_tier, assigned_vendor_id, assigned_at, excluded_vendors,
			   created_at, updated_at
		FROM incidents
		WHERE id = $1
	`
	inc := &Incident{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&inc.ID, &inc.DriverID, &inc.ServiceType, &inc.Status, &inc.Latitude, &inc.Longitude,
		&inc.PriorityTier, &inc.AssignedVendorID, &inc.AssignedAt, &inc.ExcludedVendors,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	return inc, nil
}

// Create inserts a brand-new incident in StatusCreated.
func (s *Store) Create(ctx context.Context, inc *Incident) error {
	const query = `
		INSERT INTO incidents (
			id, driver_id, service_type, status, latitude, longitude, priority_tier
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		inc.ID, inc.DriverID, inc.ServiceType, inc.Status, inc.Latitude, inc.Longitude, inc.PriorityTier,
	).Scan(&inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// ConditionalAssign attempts to set assignedVendorRef to vendorID,
// succeeding only if the incident is currently unassigned
// (PreconditionStatusForAssignment). This single UPDATE...WHERE guard is
// the at-most-one-winner linearization point for the whole dispatch
// protocol: under concurrent acceptances, Postgres' row-level locking
// guarantees exactly one caller observes RowsAffected() == 1.
func (s *Store) ConditionalAssign(ctx context.Context, incidentID, vendorID uuid.UUID) (bool, error) {
	const query = `
		UPDATE incidents
		SET status = $1, assigned_vendor_id = $2, assigned_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4 AND assigned_vendor_id IS NULL
	`
	tag, err := s.db.Exec(ctx, query,
		StatusVendorAssigned, vendorID, incidentID, PreconditionStatusForAssignment,
	)
	if err != nil {
		return false, fmt.Errorf("conditional assign incident %s: %w", incidentID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Transition records a status change and appends a timeline entry in the
// same transaction, so the current-state column and the append-only
// history never diverge.
func (s *Store) Transition(ctx context.Context, incidentID uuid.UUID, from, to Status, actor, reason string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE incidents SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, incidentID, from)
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return common.NewConflictError(fmt.Sprintf("incident %s is not in status %s", incidentID, from))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO incident_timeline (incident_id, from_status, to_status, actor, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, incidentID, from, to, actor, reason)
	if err != nil {
		return fmt.Errorf("append incident timeline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

// RevertToCreated clears assignedVendorRef and returns the incident to
// StatusCreated, adding the previously assigned vendor to the exclusion
// list. Used exclusively by VendorTimeout handling (spec.md §4.3.3); no
// other caller may clear assignedVendorRef.
// RevertToCreated reverts an overdue assignment (vendor_assigned or
// vendor_en_route) back to StatusCreated, guarded on the incident still
// being assigned to exactly the timed-out vendor — if the incident
// already advanced (arrival recorded, manual cancellation, etc.) between
// the arrival monitor's scan and this call, the row is left unchanged and
// a conflict error is returned rather than clobbering a legitimate
// transition.
func (s *Store) RevertToCreated(ctx context.Context, incidentID, timedOutVendorID uuid.UUID) error {
	const query = `
		UPDATE incidents
		SET status = $1,
			assigned_vendor_id = NULL,
			assigned_at = NULL,
			excluded_vendors = array_append(COALESCE(excluded_vendors, ARRAY[]::uuid[]), $2),
			updated_at = now()
		WHERE id = $3 AND status IN ($4, $5) AND assigned_vendor_id = $2
	`
	tag, err := s.db.Exec(ctx, query, StatusCreated, timedOutVendorID, incidentID, StatusVendorAssigned, StatusVendorEnRoute)
	if err != nil {
		return fmt.Errorf("revert incident %s after vendor timeout: %w", incidentID, err)
	}
	if tag.RowsAffected() != 1 {
		return common.NewConflictError(fmt.Sprintf("incident %s is no longer assigned to vendor %s", incidentID, timedOutVendorID))
	}
	return nil
}

// Timeline returns the append-only transition history for an incident,
// oldest first.
func (s *Store) Timeline(ctx context.Context, incidentID uuid.UUID) ([]TimelineEntry, error) {
	const query = `
		SELECT from_status, to_status, occurred_at, actor, reason
		FROM incident_timeline
		WHERE incident_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("get incident timeline %s: %w", incidentID, err)
	}
	defer rows.Close()

	var out []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.From, &e.To, &e.Timestamp, &e.Actor, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListOverdueAssigned returns every incident still awaiting arrival
// (vendor_assigned or vendor_en_route) whose assignment is older than
// cutoff — candidates for VendorTimeout handling by the arrival monitor
// (spec.md §4.3.3).
func (s *Store) ListOverdueAssigned(ctx context.Context, cutoff time.Time) ([]*Incident, error) {
	const query = `
		SELECT id, driver_id, service_type, status, latitude, longitude,
			   priority_tier, assigned_vendor_id, assigned_at, excluded_vendors,
			   created_at, updated_at
		FROM incidents
		WHERE status IN ($1, $2) AND assigned_at IS NOT NULL AND assigned_at <= $3
	`
	rows, err := s.db.Query(ctx, query, StatusVendorAssigned, StatusVendorEnRoute, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list overdue assigned incidents: %w", err)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		inc := &Incident{}
		if err := rows.Scan(
			&inc.ID, &inc.DriverID, &inc.ServiceType, &inc.Status, &inc.Latitude, &inc.Longitude,
			&inc.PriorityTier, &inc.AssignedVendorID, &inc.AssignedAt, &inc.ExcludedVendors,
			&inc.CreatedAt, &inc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan overdue incident row: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
