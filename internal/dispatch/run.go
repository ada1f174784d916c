// Package dispatch is the Dispatch Engine: the state machine that drives
// one incident through matching, offer fan-out, the assignment race,
// radius expansion, escalation, and arrival monitoring. It is the core
// of the system — every other package exists to serve it.
package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
)

// outcome is what ended a dispatch attempt's wait.
type outcome int

const (
	outcomeNone outcome = iota
	outcomeAccepted
	outcomeAllTerminalNonAccepted
	outcomeCancelled
)

// run is the explicit, in-memory state of one incident's in-flight
// dispatch attempt: attempt index, current search radius, the config
// snapshot for the current attempt, and the offers outstanding in this
// attempt. It holds no deadline and no escalation flag: batchDeadline
// computes each batch's deadline, which is stamped on every offer's
// ExpiresAt, and escalation ends the run. A run is owned by a single
// runAttemptLoop call; the arrival monitor and the HTTP accept/decline
// surface never see it and affect the loop only through the stores and
// Engine's wake signal.
type run struct {
	incidentID uuid.UUID
	attempt    int
	radius     float64
	cfg        matchconfig.MatchingConfig
	offerIDs   []uuid.UUID
	startedAt  time.Time
}

func newRun(incidentID uuid.UUID, cfg matchconfig.MatchingConfig) *run {
	return &run{
		incidentID: incidentID,
		attempt:    1,
		radius:     cfg.DefaultRadiusMiles,
		cfg:        cfg,
		startedAt:  time.Now(),
	}
}

func (r *run) batchDeadline(now time.Time) time.Time {
	return now.Add(time.Duration(r.cfg.OfferTimeoutSeconds) * time.Second)
}

// expandRadius grows the search radius for the next attempt and
// advances the attempt counter (spec.md §4.3.1: r <- r*(1+expansionFactor)).
func (r *run) expandRadius() {
	r.radius = r.cfg.NextRadius(r.radius)
	r.attempt++
}

// attemptsExhausted reports whether this run has used up its expansion
// budget and must escalate instead of trying again.
func (r *run) attemptsExhausted() bool {
	return r.attempt >= r.cfg.MaxExpansionAttempts
}
