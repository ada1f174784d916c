package offers

import (
	"context"
	"time"

	"github.com/richxcame/roadside-dispatch/pkg/clock"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// sweepInterval is how often the sweeper looks for overdue pending
// offers. The engine has no deadline timer of its own: it sees an
// expired offer only after the sweeper has transitioned it (and then on
// its next wake or 2 s poll), so the sweeper's slack (the gap between an
// offer's expiresAt and the sweeper actually transitioning it) delays
// every attempt's expiry. Keeping this interval short relative to
// offerTimeoutSeconds keeps that slack at about one second.
const sweepInterval = 1 * time.Second

// Sweeper periodically transitions overdue pending offers to expired and
// publishes one OfferExpired event per offer. Grounded on the teacher's
// ticker-based scheduler worker, inverted to look behind for expiry
// instead of ahead for scheduled activation.
type Sweeper struct {
	store *Store
	bus   *eventbus.Bus
	clock clock.Clock
	done  chan struct{}
}

// NewSweeper constructs a Sweeper over the given offer store and event bus.
func NewSweeper(store *Store, bus *eventbus.Bus, c clock.Clock) *Sweeper {
	return &Sweeper{store: store, bus: bus, clock: c, done: make(chan struct{})}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	expired, err := s.store.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		logger.Error("failed to sweep expired offers", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, o := range expired {
		event, err := eventbus.NewEvent(eventbus.SubjectOfferExpired, eventbus.Source, eventbus.OfferExpiredData{
			OfferID:    o.ID,
			IncidentID: o.IncidentID,
			VendorID:   o.VendorID,
			ExpiredAt:  s.clock.Now(),
		})
		if err != nil {
			logger.Error("failed to build OfferExpired event", zap.Error(err))
			continue
		}
		if err := s.bus.Publish(ctx, eventbus.SubjectOfferExpired, event); err != nil {
			logger.Warn("failed to publish OfferExpired event",
				zap.String("offer_id", o.ID.String()),
				zap.Error(err),
			)
		}
	}

	logger.Debug("swept expired offers", zap.Int("count", len(expired)))
}
