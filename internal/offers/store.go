package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/roadside-dispatch/pkg/common"
)

// Store is the Postgres-backed Offer Store. All terminal transitions
// (accepted, declined, expired, cancelled) are guarded by a conditional
// UPDATE...WHERE status = 'pending', mirroring the same optimistic
// concurrency idiom the Incident Store uses for assignment.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates an offer store backed by the given pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Create inserts a new pending offer.
func (s *Store) Create(ctx context.Context, o *Offer) error {
	breakdown, err := json.Marshal(o.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	const query = `
		INSERT INTO offers (
			id, incident_id, vendor_id, status, match_score, breakdown,
			estimated_payout, attempt, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err = s.db.QueryRow(ctx, query,
		o.ID, o.IncidentID, o.VendorID, o.Status, o.MatchScore, breakdown,
		o.EstimatedPayout, o.Attempt, o.ExpiresAt,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

// Get retrieves an offer by id, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Offer, error) {
	const query = `
		SELECT id, incident_id, vendor_id, status, match_score, breakdown,
			   estimated_payout, attempt, expires_at, responded_at,
			   decline_reason, created_at
		FROM offers
		WHERE id = $1
	`
	o := &Offer{}
	var breakdown []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.IncidentID, &o.VendorID, &o.Status, &o.MatchScore, &breakdown,
		&o.EstimatedPayout, &o.Attempt, &o.ExpiresAt, &o.RespondedAt,
		&o.DeclineReason, &o.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &o.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown for offer %s: %w", id, err)
		}
	}
	return o, nil
}

// ListPendingForIncident returns every offer still pending for an
// incident, used to find siblings to cancel on supersession or
// cancellation.
func (s *Store) ListPendingForIncident(ctx context.Context, incidentID uuid.UUID) ([]*Offer, error) {
	const query = `
		SELECT id, incident_id, vendor_id, status, match_score, breakdown,
			   estimated_payout, attempt, expires_at, responded_at,
			   decline_reason, created_at
		FROM offers
		WHERE incident_id = $1 AND status = $2
	`
	rows, err := s.db.Query(ctx, query, incidentID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending offers for incident %s: %w", incidentID, err)
	}
	defer rows.Close()

	var out []*Offer
	for rows.Next() {
		o := &Offer{}
		var breakdown []byte
		if err := rows.Scan(
			&o.ID, &o.IncidentID, &o.VendorID, &o.Status, &o.MatchScore, &breakdown,
			&o.EstimatedPayout, &o.Attempt, &o.ExpiresAt, &o.RespondedAt,
			&o.DeclineReason, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		if len(breakdown) > 0 {
			_ = json.Unmarshal(breakdown, &o.Breakdown)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Terminate transitions an offer from pending to newStatus, recording a
// response timestamp and optional reason, succeeding only if the offer
// is still pending. Returns common.NewConflictError if the offer has
// already reached a terminal state.
func (s *Store) Terminate(ctx context.Context, id uuid.UUID, newStatus Status, reason *string) (*Offer, error) {
	const query = `
		UPDATE offers
		SET status = $1, responded_at = $2, decline_reason = $3
		WHERE id = $4 AND status = $5
	`
	now := time.Now()
	tag, err := s.db.Exec(ctx, query, newStatus, now, reason, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("terminate offer %s: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return nil, common.NewConflictError(fmt.Sprintf("offer %s is not pending", id))
	}
	return s.Get(ctx, id)
}

// ExpireOverdue transitions every pending offer whose expiry has been
// reached (expires_at <= now) to StatusExpired, returning the offers it expired so
// the caller can emit one OfferExpired event per offer. Grounded on the
// same ticker-driven sweep shape as the teacher's scheduled-ride worker,
// inverted to look behind for overdue deadlines instead of ahead for
// upcoming activations.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) ([]*Offer, error) {
	const query = `
		UPDATE offers
		SET status = $1, responded_at = $2
		WHERE status = $3 AND expires_at <= $2
		RETURNING id, incident_id, vendor_id, status, match_score, breakdown,
				  estimated_payout, attempt, expires_at, responded_at,
				  decline_reason, created_at
	`
	rows, err := s.db.Query(ctx, query, StatusExpired, now, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("expire overdue offers: %w", err)
	}
	defer rows.Close()

	var out []*Offer
	for rows.Next() {
		o := &Offer{}
		var breakdown []byte
		if err := rows.Scan(
			&o.ID, &o.IncidentID, &o.VendorID, &o.Status, &o.MatchScore, &breakdown,
			&o.EstimatedPayout, &o.Attempt, &o.ExpiresAt, &o.RespondedAt,
			&o.DeclineReason, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired offer row: %w", err)
		}
		if len(breakdown) > 0 {
			_ = json.Unmarshal(breakdown, &o.Breakdown)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
