// Package matching is the Matcher: it turns an incident and a search
// radius into a ranked, capped list of candidate vendors. It performs no
// I/O beyond reading the vendor directory/geo-index — offer creation and
// fan-out belong to the dispatch engine, not here (spec.md §4.2's
// separation of concerns from the teacher's combined match-and-offer
// service).
package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/roadside-dispatch/internal/incidents"
	"github.com/richxcame/roadside-dispatch/internal/matchconfig"
	"github.com/richxcame/roadside-dispatch/internal/scoring"
	"github.com/richxcame/roadside-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// Matcher finds, filters, scores, and ranks vendor candidates for an
// incident. It is stateless and safe for concurrent use.
type Matcher struct {
	geoIndex  GeoIndex
	directory Directory
}

// NewMatcher constructs a Matcher over the given geo-index and directory.
func NewMatcher(geoIndex GeoIndex, directory Directory) *Matcher {
	return &Matcher{geoIndex: geoIndex, directory: directory}
}

// MatchOnce runs one matching pass: find vendors within radiusMiles of
// the incident's location, hydrate their profiles, drop any that fail
// the capability or availability gate, score and rank the rest, and
// truncate to the configured batch size (spec.md §4.1, §4.2).
//
// An empty, non-error result means "no eligible vendor within this
// radius" — the caller (the dispatch engine) is responsible for
// deciding whether to expand the radius or escalate.
func (m *Matcher) MatchOnce(ctx context.Context, inc *incidents.Incident, radiusMiles float64, cfg matchconfig.MatchingConfig) ([]scoring.Result, error) {
	candidateIDs, err := m.geoIndex.FindWithinRadius(ctx, inc.Latitude, inc.Longitude, radiusMiles)
	if err != nil {
		return nil, fmt.Errorf("find vendors within %.1fmi: %w", radiusMiles, err)
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	candidateIDs = excludeVendors(candidateIDs, inc.ExcludedVendors)
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	pool, err := m.directory.GetMany(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate vendor candidates: %w", err)
	}

	results := make([]scoring.Result, 0, len(pool))
	for _, v := range pool {
		if v.ActiveIncidentID != nil {
			continue
		}
		r := scoring.Score(v, inc, cfg)
		if r.Breakdown.Capability == 0 || r.Breakdown.Availability == 0 {
			continue
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		logger.Debug("no eligible vendors after capability/availability filter",
			zap.String("incident_id", inc.ID.String()),
			zap.Float64("radius_miles", radiusMiles),
			zap.Int("candidates_considered", len(pool)),
		)
		return nil, nil
	}

	scoring.Rank(results)

	if len(results) > cfg.MaxConcurrentOffers {
		results = results[:cfg.MaxConcurrentOffers]
	}

	return results, nil
}

// excludeVendors filters out any candidate id present in excluded,
// preserving order. Used to honor an incident's excludedVendors set
// (vendors already timed out on a prior attempt, spec.md §4.3.3).
func excludeVendors(candidates, excluded []uuid.UUID) []uuid.UUID {
	if len(excluded) == 0 {
		return candidates
	}
	skip := make(map[uuid.UUID]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	out := candidates[:0:0]
	for _, id := range candidates {
		if _, ok := skip[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}
