package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/offers"
	"github.com/richxcame/roadside-dispatch/internal/scoring"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/clock"
	"github.com/richxcame/roadside-dispatch/pkg/common"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/richxcame/roadside-dispatch/pkg/ids"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// pollInterval is how often an in-flight attempt re-checks offer state
// when it hasn't been woken directly by an accept/decline call on this
// same instance — the cross-instance correctness fallback, since only
// Postgres is guaranteed shared state.
const pollInterval = 2 * time.Second

// Engine drives incidents through the dispatch lifecycle: matching,
// offer fan-out, the assignment race, radius expansion, and escalation.
// Grounded on the teacher's matching.Service (onRideRequested/
// sendOffersWithDelay), restructured around an explicit per-incident run
// instead of one-shot goroutines with no shared state to observe.
type Engine struct {
	incidents incidentStore
	vendorDir vendorDirectory
	offerDB   offerStore
	matcher   matcher
	configs   configProvider
	bus       publisher
	clock     clock.Clock

	mu      sync.Mutex
	wakeups map[uuid.UUID]chan struct{}
}

// NewEngine constructs a dispatch engine over its collaborators. The
// concrete *incidents.Store, *vendors.Directory, *offers.Store,
// *matching.Matcher, *matchconfig.Provider, and *eventbus.Bus types all
// satisfy the narrow interfaces declared in interfaces.go.
func NewEngine(
	incidentStore incidentStore,
	vendorDir vendorDirectory,
	offerStore offerStore,
	matcher matcher,
	configs configProvider,
	bus publisher,
	c clock.Clock,
) *Engine {
	return &Engine{
		incidents: incidentStore,
		vendorDir: vendorDir,
		offerDB:   offerStore,
		matcher:   matcher,
		configs:   configs,
		bus:       bus,
		clock:     c,
		wakeups:   make(map[uuid.UUID]chan struct{}),
	}
}

// Dispatch runs the attempt loop for incidentID to completion: assigned,
// escalated, or cancelled. It blocks its caller for the loop's whole
// duration, so production callers invoke it from a dedicated goroutine
// per incident (e.g. the NATS IncidentCreated subscriber).
func (e *Engine) Dispatch(ctx context.Context, incidentID uuid.UUID) error {
	cfg, err := e.configs.Current(ctx)
	if err != nil {
		return fmt.Errorf("load matching config: %w", err)
	}

	r := newRun(incidentID, cfg)
	return e.runAttemptLoop(ctx, r)
}

func (e *Engine) runAttemptLoop(ctx context.Context, r *run) error {
	for {
		// Re-snapshot the matching config at the start of every attempt so
		// a config change reaches the next attempt, never the one underway.
		if cfg, err := e.configs.Current(ctx); err == nil {
			r.cfg = cfg
		}

		inc, err := withRetry(ctx, "dispatch.load_incident", func(ctx context.Context) (*incidents.Incident, error) {
			return e.incidents.Get(ctx, r.incidentID)
		})
		if err != nil {
			// A store read that never recovers is irrecoverable for this
			// run: there is no state left to decide against. Fatal per
			// spec.md §4.3.5 — escalate rather than leave the incident
			// silently stuck in "created".
			logger.Error("incident load exhausted retries, escalating",
				zap.String("incident_id", r.incidentID.String()), zap.Error(err))
			return e.escalate(ctx, r, "internal")
		}
		if inc == nil {
			return fmt.Errorf("incident %s not found", r.incidentID)
		}
		if inc.Status == incidents.StatusCancelled {
			logger.Info("dispatch loop exiting, incident already cancelled",
				zap.String("incident_id", r.incidentID.String()))
			return nil
		}
		if inc.Status != incidents.PreconditionStatusForAssignment {
			// Already assigned by the time this attempt reached the top of
			// the loop (e.g. a prior batch's acceptance landed while this
			// goroutine was between iterations).
			return nil
		}

		candidates, err := withRetry(ctx, "dispatch.match_once", func(ctx context.Context) ([]scoring.Result, error) {
			return e.matcher.MatchOnce(ctx, inc, r.radius, r.cfg)
		})
		if err != nil {
			// Transient matcher/geo-query failures that never clear count
			// as "no vendor found" for this attempt rather than failing
			// the whole run — the next iteration's radius expansion (or
			// escalation once attempts are exhausted) is the same path a
			// genuinely empty candidate set takes.
			logger.Warn("match attempt exhausted retries, treating as no candidates",
				zap.String("incident_id", r.incidentID.String()), zap.Error(err))
			candidates = nil
		}

		if len(candidates) == 0 {
			if r.attemptsExhausted() {
				return e.escalate(ctx, r, "no eligible vendor found within max radius")
			}
			logger.Info("no candidates found, expanding radius",
				zap.String("incident_id", r.incidentID.String()),
				zap.Float64("radius_miles", r.radius),
				zap.Int("attempt", r.attempt),
			)
			r.expandRadius()
			continue
		}

		if err := e.createOfferBatch(ctx, inc, r, candidates); err != nil {
			return fmt.Errorf("create offer batch for incident %s: %w", r.incidentID, err)
		}

		result, err := e.waitForOutcome(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("wait for outcome on incident %s: %w", r.incidentID, err)
			}
			logger.Error("outcome check exhausted retries, escalating",
				zap.String("incident_id", r.incidentID.String()), zap.Error(err))
			return e.escalate(ctx, r, "internal")
		}

		switch result {
		case outcomeAccepted, outcomeCancelled:
			return nil
		case outcomeAllTerminalNonAccepted:
			if r.attemptsExhausted() {
				return e.escalate(ctx, r, "all offers declined or expired at max radius")
			}
			r.expandRadius()
			continue
		}
	}
}

// createOfferBatch creates one pending offer per candidate and publishes
// OfferCreated for each (spec.md §4.2: offers within a batch are created
// synchronously, sharing one batch deadline).
func (e *Engine) createOfferBatch(ctx context.Context, inc *incidents.Incident, r *run, candidates []scoring.Result) error {
	now := e.clock.Now()
	deadline := r.batchDeadline(now)
	r.offerIDs = r.offerIDs[:0]

	for _, c := range candidates {
		offer := &offers.Offer{
			ID:              ids.New(),
			IncidentID:      inc.ID,
			VendorID:        c.Vendor.ID,
			Status:          offers.StatusPending,
			MatchScore:      c.Score,
			Breakdown:       c.Breakdown,
			EstimatedPayout: scoring.EstimatedPayout(c.Vendor, inc, c.DistanceMi),
			Attempt:         r.attempt,
			ExpiresAt:       deadline,
		}
		if err := e.offerDB.Create(ctx, offer); err != nil {
			return fmt.Errorf("create offer for vendor %s: %w", c.Vendor.ID, err)
		}
		r.offerIDs = append(r.offerIDs, offer.ID)

		e.publish(ctx, eventbus.SubjectOfferCreated, eventbus.OfferCreatedData{
			OfferID:         offer.ID,
			IncidentID:      offer.IncidentID,
			VendorID:        offer.VendorID,
			Attempt:         offer.Attempt,
			MatchScore:      offer.MatchScore,
			EstimatedPayout: offer.EstimatedPayout,
			ExpiresAt:       offer.ExpiresAt,
			CreatedAt:       now,
		})
	}

	logger.Info("offer batch created",
		zap.String("incident_id", inc.ID.String()),
		zap.Int("attempt", r.attempt),
		zap.Int("offer_count", len(r.offerIDs)),
		zap.Float64("radius_miles", r.radius),
	)
	return nil
}

// waitForOutcome blocks until the batch is decided: one offer accepted,
// every offer reaching a terminal non-accepted state, the batch deadline
// passing (folded into the same "all terminal" outcome via the sweeper),
// or the incident being cancelled out from under the attempt.
func (e *Engine) waitForOutcome(ctx context.Context, r *run) (outcome, error) {
	wake := e.register(r.incidentID)
	defer e.unregister(r.incidentID, wake)

	ticker := e.clock.NewTimer(pollInterval)
	defer ticker.Stop()

	for {
		if result, err := e.checkOutcome(ctx, r); err != nil {
			return outcomeNone, err
		} else if result != outcomeNone {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return outcomeNone, ctx.Err()
		case <-wake:
			continue
		case <-ticker.C():
			ticker.Reset(pollInterval)
			continue
		}
	}
}

// checkOutcome inspects current DB state for a decisive outcome. It is
// the only place that interprets "decided" for a batch, so both the
// fast in-memory wakeup path and the poll fallback agree on the result.
func (e *Engine) checkOutcome(ctx context.Context, r *run) (outcome, error) {
	inc, err := withRetry(ctx, "dispatch.check_outcome_load", func(ctx context.Context) (*incidents.Incident, error) {
		return e.incidents.Get(ctx, r.incidentID)
	})
	if err != nil {
		return outcomeNone, fmt.Errorf("load incident %s: %w", r.incidentID, err)
	}
	if inc == nil {
		return outcomeNone, fmt.Errorf("incident %s vanished mid-attempt", r.incidentID)
	}
	if inc.Status == incidents.StatusCancelled {
		return outcomeCancelled, nil
	}
	if inc.Status != incidents.PreconditionStatusForAssignment {
		return outcomeAccepted, nil
	}

	pending, err := e.offerDB.ListPendingForIncident(ctx, r.incidentID)
	if err != nil {
		return outcomeNone, fmt.Errorf("list pending offers for incident %s: %w", r.incidentID, err)
	}
	if len(pending) == 0 {
		return outcomeAllTerminalNonAccepted, nil
	}
	return outcomeNone, nil
}

// AcceptOffer runs the assignment-selection-under-race protocol
// (spec.md §4.3.2): validate, attempt the conditional write that is this
// system's single linearization point, and on success cancel every
// sibling offer and advance the incident.
func (e *Engine) AcceptOffer(ctx context.Context, offerID, vendorID uuid.UUID) (*offers.Offer, error) {
	offer, err := e.offerDB.Get(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", offerID, err)
	}
	if offer == nil {
		return nil, common.NewNotFoundError("offer not found", nil)
	}
	if offer.VendorID != vendorID {
		return nil, common.NewForbiddenError("offer does not belong to this vendor")
	}
	if offer.Status != offers.StatusPending {
		return nil, common.NewConflictError(fmt.Sprintf("offer %s is not pending", offerID))
	}
	if offer.IsExpired(e.clock.Now()) {
		return nil, common.NewExpiredError(fmt.Sprintf("offer %s has expired", offerID))
	}

	won, err := e.incidents.ConditionalAssign(ctx, offer.IncidentID, vendorID)
	if err != nil {
		return nil, fmt.Errorf("conditionally assign incident %s: %w", offer.IncidentID, err)
	}
	if !won {
		return nil, common.NewConflictError("incident was already assigned to another vendor")
	}

	accepted, err := e.offerDB.Terminate(ctx, offerID, offers.StatusAccepted, nil)
	if err != nil {
		return nil, fmt.Errorf("terminate accepted offer %s: %w", offerID, err)
	}
	if accepted == nil || accepted.Status != offers.StatusAccepted {
		// The conditional assign just told us we won the incident, so this
		// offer terminating as anything other than accepted would mean two
		// offers were accepted for the same incident — the one invariant
		// violation the protocol must make impossible. Guarded rather than
		// trusted (spec.md §4.3.5, Fatal).
		logger.Error("invariant violation: won assignment but offer did not terminate as accepted",
			zap.String("offer_id", offerID.String()), zap.String("incident_id", offer.IncidentID.String()))
		return nil, fmt.Errorf("invariant violation: offer %s did not terminate as accepted", offerID)
	}

	if err := e.vendorDir.SetAvailability(ctx, vendorID, vendors.AvailabilityBusy, &offer.IncidentID); err != nil {
		logger.Error("failed to mark vendor busy after acceptance", zap.Error(err))
	}
	if err := e.vendorDir.RecordOfferOutcome(ctx, vendorID, true); err != nil {
		logger.Error("failed to record acceptance outcome", zap.Error(err))
	}

	now := e.clock.Now()
	e.publish(ctx, eventbus.SubjectOfferAccepted, eventbus.OfferAcceptedData{
		OfferID: accepted.ID, IncidentID: accepted.IncidentID, VendorID: vendorID, AcceptedAt: now,
	})
	e.publish(ctx, eventbus.SubjectIncidentAssigned, eventbus.IncidentAssignedData{
		IncidentID: accepted.IncidentID, VendorID: vendorID, OfferID: accepted.ID,
		Attempt: accepted.Attempt, AssignedAt: now,
	})

	e.cancelSiblingOffers(ctx, accepted.IncidentID, accepted.ID, "superseded")
	e.wake(accepted.IncidentID)

	return accepted, nil
}

// DeclineOffer transitions a pending offer to declined (spec.md §4.2).
func (e *Engine) DeclineOffer(ctx context.Context, offerID, vendorID uuid.UUID, reason *string) error {
	offer, err := e.offerDB.Get(ctx, offerID)
	if err != nil {
		return fmt.Errorf("get offer %s: %w", offerID, err)
	}
	if offer == nil {
		return common.NewNotFoundError("offer not found", nil)
	}
	if offer.VendorID != vendorID {
		return common.NewForbiddenError("offer does not belong to this vendor")
	}

	declined, err := e.offerDB.Terminate(ctx, offerID, offers.StatusDeclined, reason)
	if err != nil {
		return err
	}

	if err := e.vendorDir.RecordOfferOutcome(ctx, vendorID, false); err != nil {
		logger.Error("failed to record decline outcome", zap.Error(err))
	}

	declineReason := ""
	if reason != nil {
		declineReason = *reason
	}
	e.publish(ctx, eventbus.SubjectOfferDeclined, eventbus.OfferDeclinedData{
		OfferID: declined.ID, IncidentID: declined.IncidentID, VendorID: vendorID,
		Reason: declineReason, DeclinedAt: e.clock.Now(),
	})

	e.wake(declined.IncidentID)
	return nil
}

// CancelIncident cancels an incident mid-attempt, terminating every
// pending offer and stopping the attempt loop at its next check
// (spec.md's cancellation-mid-attempt seed scenario).
func (e *Engine) CancelIncident(ctx context.Context, incidentID uuid.UUID, actor, reason string) error {
	inc, err := e.incidents.Get(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("get incident %s: %w", incidentID, err)
	}
	if inc == nil {
		return common.NewNotFoundError("incident not found", nil)
	}
	if incidents.ArrivalTerminalStatuses[inc.Status] || inc.Status == incidents.StatusClosed {
		return common.NewConflictError("incident has already progressed past cancellation")
	}

	fromStatus := inc.Status
	if err := e.incidents.Transition(ctx, incidentID, fromStatus, incidents.StatusCancelled, actor, reason); err != nil {
		return err
	}

	now := e.clock.Now()
	e.publish(ctx, eventbus.SubjectIncidentStatus, eventbus.IncidentStatusChangedData{
		IncidentID: incidentID, FromStatus: string(fromStatus), ToStatus: string(incidents.StatusCancelled),
		Actor: actor, Reason: reason, ChangedAt: now,
	})

	e.cancelSiblingOffers(ctx, incidentID, uuid.Nil, "incident_cancelled")

	e.publish(ctx, eventbus.SubjectIncidentCancelled, eventbus.IncidentCancelledData{
		IncidentID: incidentID, CancelledBy: actor, Reason: reason, CancelledAt: now,
	})

	e.wake(incidentID)
	return nil
}

func (e *Engine) cancelSiblingOffers(ctx context.Context, incidentID, exceptOfferID uuid.UUID, reason string) {
	pending, err := e.offerDB.ListPendingForIncident(ctx, incidentID)
	if err != nil {
		logger.Error("failed to list pending offers for cancellation", zap.Error(err))
		return
	}
	for _, o := range pending {
		if o.ID == exceptOfferID {
			continue
		}
		cancelled, err := e.offerDB.Terminate(ctx, o.ID, offers.StatusCancelled, &reason)
		if err != nil {
			logger.Warn("failed to cancel sibling offer", zap.String("offer_id", o.ID.String()), zap.Error(err))
			continue
		}
		e.publish(ctx, eventbus.SubjectOfferCancelled, eventbus.OfferCancelledData{
			OfferID: cancelled.ID, IncidentID: incidentID, VendorID: cancelled.VendorID,
			Reason: reason, CancelledAt: e.clock.Now(),
		})
	}
}

// escalate gives up on automated matching for this run, recording why,
// and emits IncidentEscalated for human follow-up (spec.md §4.3.4).
func (e *Engine) escalate(ctx context.Context, r *run, reason string) error {
	logger.Warn("incident escalated",
		zap.String("incident_id", r.incidentID.String()),
		zap.Int("attempts", r.attempt),
		zap.Float64("final_radius_miles", r.radius),
		zap.String("reason", reason),
	)
	e.publish(ctx, eventbus.SubjectIncidentEscalated, eventbus.IncidentEscalatedData{
		IncidentID: r.incidentID, Attempts: r.attempt, FinalRadius: r.radius,
		Reason: reason, EscalatedAt: e.clock.Now(),
	})
	return nil
}

func (e *Engine) publish(ctx context.Context, subject string, data interface{}) {
	event, err := eventbus.NewEvent(subject, eventbus.Source, data)
	if err != nil {
		logger.Error("failed to build event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := e.bus.Publish(ctx, subject, event); err != nil {
		logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func (e *Engine) register(incidentID uuid.UUID) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{}, 1)
	e.wakeups[incidentID] = ch
	return ch
}

func (e *Engine) unregister(incidentID uuid.UUID, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, ok := e.wakeups[incidentID]; ok && current == ch {
		delete(e.wakeups, incidentID)
	}
}

// wake nudges an in-flight attempt's wait loop to re-check state
// immediately instead of waiting for the next poll tick. A no-op if no
// attempt for this incident is waiting on this instance.
func (e *Engine) wake(incidentID uuid.UUID) {
	e.mu.Lock()
	ch, ok := e.wakeups[incidentID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
