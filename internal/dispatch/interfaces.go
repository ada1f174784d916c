package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/internal/scoring"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
)

// incidentStore is the subset of incidents.Store the engine needs.
// Satisfied by *incidents.Store in production and a fake in tests.
type incidentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*incidents.Incident, error)
	Create(ctx context.Context, inc *incidents.Incident) error
	ConditionalAssign(ctx context.Context, incidentID, vendorID uuid.UUID) (bool, error)
	Transition(ctx context.Context, incidentID uuid.UUID, from, to incidents.Status, actor, reason string) error
	RevertToCreated(ctx context.Context, incidentID, timedOutVendorID uuid.UUID) error
	ListOverdueAssigned(ctx context.Context, cutoff time.Time) ([]*incidents.Incident, error)
}

// offerStore is the subset of offers.Store the engine needs.
type offerStore interface {
	Create(ctx context.Context, o *offers.Offer) error
	Get(ctx context.Context, id uuid.UUID) (*offers.Offer, error)
	ListPendingForIncident(ctx context.Context, incidentID uuid.UUID) ([]*offers.Offer, error)
	Terminate(ctx context.Context, id uuid.UUID, newStatus offers.Status, reason *string) (*offers.Offer, error)
}

// vendorDirectory is the subset of vendors.Directory the engine needs.
type vendorDirectory interface {
	SetAvailability(ctx context.Context, vendorID uuid.UUID, availability vendors.Availability, activeIncidentID *uuid.UUID) error
	RecordOfferOutcome(ctx context.Context, vendorID uuid.UUID, accepted bool) error
}

// matcher is the subset of matching.Matcher the engine needs.
type matcher interface {
	MatchOnce(ctx context.Context, inc *incidents.Incident, radiusMiles float64, cfg matchconfig.MatchingConfig) ([]scoring.Result, error)
}

// configProvider is the subset of matchconfig.Provider the engine needs.
type configProvider interface {
	Current(ctx context.Context) (matchconfig.MatchingConfig, error)
}

// publisher is the subset of eventbus.Bus the engine needs.
type publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
