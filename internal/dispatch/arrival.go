package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/vendors"
	"github.com/richxcame/roadside-dispatch/pkg/common"
	"github.com/richxcame/roadside-dispatch/pkg/eventbus"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// fallbackArrivalCheckInterval is used when the monitor cannot load
// matchconfig on startup or between scans (e.g. the config provider is
// briefly unavailable), or when the configured ArrivalPollIntervalMinutes
// is not positive; the configured value drives the cadence otherwise. Grounded on the teacher's scheduler.Worker
// ticker shape.
const fallbackArrivalCheckInterval = 1 * time.Minute

// ArrivalMonitor polls assigned incidents for vendors who never reach a
// terminal arrival state before their deadline, and reverts those
// incidents for reassignment (spec.md §4.3.3, VendorTimeout).
type ArrivalMonitor struct {
	engine    *Engine
	incidents incidentStore
	vendorDir vendorDirectory
	done      chan struct{}
}

// NewArrivalMonitor constructs an arrival monitor bound to the given
// engine (used to re-enter the attempt loop after a timeout reverts an
// incident). Accepts the same narrow store interfaces as Engine so tests
// can exercise it against fakes rather than a live database.
func NewArrivalMonitor(engine *Engine, incidentStore incidentStore, vendorDir vendorDirectory) *ArrivalMonitor {
	return &ArrivalMonitor{engine: engine, incidents: incidentStore, vendorDir: vendorDir, done: make(chan struct{})}
}

// Start runs the scan loop until ctx is cancelled or Stop is called. The
// interval between scans is re-read from matchconfig after every scan,
// so operators can retune ArrivalPollIntervalMinutes without a restart.
func (a *ArrivalMonitor) Start(ctx context.Context) {
	interval := a.scanOnce(ctx)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			interval = a.scanOnce(ctx)
			timer.Reset(interval)
		case <-ctx.Done():
			return
		case <-a.done:
			return
		}
	}
}

// Stop gracefully stops the monitor.
func (a *ArrivalMonitor) Stop() {
	close(a.done)
}

// scanOnce runs a single overdue-assignment scan and returns the
// interval the next scan should wait before running, per the live
// matchconfig.
func (a *ArrivalMonitor) scanOnce(ctx context.Context) time.Duration {
	cfg, err := a.engine.configs.Current(ctx)
	if err != nil {
		logger.Error("arrival monitor failed to load matching config", zap.Error(err))
		return fallbackArrivalCheckInterval
	}

	pollInterval := time.Duration(cfg.ArrivalPollIntervalMinutes) * time.Minute
	if pollInterval <= 0 {
		pollInterval = fallbackArrivalCheckInterval
	}

	deadline := time.Duration(cfg.ArrivalDeadlineMinutes) * time.Minute
	cutoff := a.engine.clock.Now().Add(-deadline)

	overdue, err := a.incidents.ListOverdueAssigned(ctx, cutoff)
	if err != nil {
		logger.Error("failed to list overdue assigned incidents", zap.Error(err))
		return pollInterval
	}
	if len(overdue) == 0 {
		return pollInterval
	}

	logger.Info("arrival monitor found overdue assignments", zap.Int("count", len(overdue)))
	for _, inc := range overdue {
		a.handleVendorTimeout(ctx, inc)
	}
	return pollInterval
}

// handleVendorTimeout reverts an incident to created, excludes the timed
// out vendor, frees the vendor back to available, emits VendorTimeout,
// and re-enters the attempt loop with a fresh run (spec.md §9, decided:
// a fresh run from VendorTimeout resets attempt count and radius — it
// does not inherit the prior run's budget).
func (a *ArrivalMonitor) handleVendorTimeout(ctx context.Context, inc *incidents.Incident) {
	if inc.AssignedVendorID == nil {
		return
	}
	timedOutVendor := *inc.AssignedVendorID
	assignedAt := inc.CreatedAt
	if inc.AssignedAt != nil {
		assignedAt = *inc.AssignedAt
	}

	fromStatus := inc.Status
	if err := a.incidents.RevertToCreated(ctx, inc.ID, timedOutVendor); err != nil {
		if _, ok := err.(*common.AppError); ok {
			// The incident moved on (arrival recorded, cancelled, etc.)
			// between the scan and this revert — not a failure, just a
			// stale read losing the race. Nothing to redispatch.
			logger.Info("skipping vendor timeout revert, incident no longer in the timed-out assignment",
				zap.String("incident_id", inc.ID.String()))
			return
		}
		logger.Error("failed to revert incident after vendor timeout",
			zap.String("incident_id", inc.ID.String()), zap.Error(err))
		return
	}

	if err := a.vendorDir.SetAvailability(ctx, timedOutVendor, vendors.AvailabilityAvailable, nil); err != nil {
		logger.Error("failed to free vendor after timeout", zap.Error(err))
	}

	now := a.engine.clock.Now()
	a.engine.publish(ctx, eventbus.SubjectIncidentStatus, eventbus.IncidentStatusChangedData{
		IncidentID: inc.ID, FromStatus: string(fromStatus), ToStatus: string(incidents.StatusCreated),
		Actor: "arrival_monitor", Reason: "vendor_timeout", ChangedAt: now,
	})
	a.engine.publish(ctx, eventbus.SubjectVendorTimeout, eventbus.VendorTimeoutData{
		IncidentID: inc.ID, VendorID: timedOutVendor, AssignedAt: assignedAt, TimedOutAt: now,
	})

	logger.Warn("vendor timed out, reassigning",
		zap.String("incident_id", inc.ID.String()),
		zap.String("vendor_id", timedOutVendor.String()),
	)

	go a.redispatch(context.Background(), inc.ID)
}

// redispatch runs a brand new attempt loop for an incident that just
// had its assignment reverted. Run in its own goroutine so the scan
// loop is never blocked by a reassignment's full attempt lifecycle.
func (a *ArrivalMonitor) redispatch(ctx context.Context, incidentID uuid.UUID) {
	if err := a.engine.Dispatch(ctx, incidentID); err != nil {
		logger.Error("redispatch after vendor timeout failed",
			zap.String("incident_id", incidentID.String()), zap.Error(err))
	}
}
