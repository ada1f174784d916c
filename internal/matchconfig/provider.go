package matchconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/richxcame/roadside-dispatch/pkg/redis"
)

const (
	cacheKey = "matchconfig:current"
	cacheTTL = 30 * time.Second
)

// Provider reads the current matching configuration, preferring a
// short-lived Redis cache over Postgres so a hot dispatch path rarely
// pays a round trip to the database for something that changes
// infrequently. Grounded on the teacher's cache-then-fallback idiom used
// throughout its geo/driver-lookup services.
type Provider struct {
	db    *pgxpool.Pool
	cache redisclient.ClientInterface
}

// NewProvider constructs a configuration provider over the given pool
// and cache.
func NewProvider(db *pgxpool.Pool, cache redisclient.ClientInterface) *Provider {
	return &Provider{db: db, cache: cache}
}

// Current returns the latest configuration version, consulting the
// cache first. A dispatch attempt calls this exactly once at its start
// and pins the result for its whole lifetime.
func (p *Provider) Current(ctx context.Context) (MatchingConfig, error) {
	if p.cache != nil {
		if raw, err := p.cache.GetString(ctx, cacheKey); err == nil && raw != "" {
			var cfg MatchingConfig
			if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr == nil {
				return cfg, nil
			}
		}
	}

	cfg, err := p.loadLatest(ctx)
	if err != nil {
		return MatchingConfig{}, err
	}

	if p.cache != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			_ = p.cache.SetWithExpiration(ctx, cacheKey, string(raw), cacheTTL)
		}
	}

	return cfg, nil
}

func (p *Provider) loadLatest(ctx context.Context) (MatchingConfig, error) {
	const query = `
		SELECT version, weight_distance, weight_capability, weight_availability,
			   weight_acceptance_rate, weight_rating, default_radius_miles,
			   max_radius_miles, radius_expansion_factor, max_expansion_attempts,
			   offer_timeout_seconds, max_concurrent_offers_per_attempt,
			   arrival_deadline_minutes, arrival_poll_interval_minutes
		FROM dispatch_config
		ORDER BY version DESC
		LIMIT 1
	`
	var cfg MatchingConfig
	err := p.db.QueryRow(ctx, query).Scan(
		&cfg.Version, &cfg.Weights.Distance, &cfg.Weights.Capability, &cfg.Weights.Availability,
		&cfg.Weights.AcceptanceRate, &cfg.Weights.Rating, &cfg.DefaultRadiusMiles,
		&cfg.MaxRadiusMiles, &cfg.RadiusExpansionFactor, &cfg.MaxExpansionAttempts,
		&cfg.OfferTimeoutSeconds, &cfg.MaxConcurrentOffers,
		&cfg.ArrivalDeadlineMinutes, &cfg.ArrivalPollIntervalMinutes,
	)
	if err == pgx.ErrNoRows {
		return Default(), nil
	}
	if err != nil {
		return MatchingConfig{}, fmt.Errorf("load matching config: %w", err)
	}
	if verr := cfg.Validate(); verr != nil {
		return MatchingConfig{}, fmt.Errorf("loaded matching config is invalid: %w", verr)
	}
	return cfg, nil
}

// Publish inserts a new configuration version and invalidates the
// cache so the next Current call reloads from Postgres.
func (p *Provider) Publish(ctx context.Context, cfg MatchingConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid matching config: %w", err)
	}

	const query = `
		INSERT INTO dispatch_config (
			version, weight_distance, weight_capability, weight_availability,
			weight_acceptance_rate, weight_rating, default_radius_miles,
			max_radius_miles, radius_expansion_factor, max_expansion_attempts,
			offer_timeout_seconds, max_concurrent_offers_per_attempt,
			arrival_deadline_minutes, arrival_poll_interval_minutes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
	`
	_, err := p.db.Exec(ctx, query,
		cfg.Version, cfg.Weights.Distance, cfg.Weights.Capability, cfg.Weights.Availability,
		cfg.Weights.AcceptanceRate, cfg.Weights.Rating, cfg.DefaultRadiusMiles,
		cfg.MaxRadiusMiles, cfg.RadiusExpansionFactor, cfg.MaxExpansionAttempts,
		cfg.OfferTimeoutSeconds, cfg.MaxConcurrentOffers,
		cfg.ArrivalDeadlineMinutes, cfg.ArrivalPollIntervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("publish matching config: %w", err)
	}

	if p.cache != nil {
		_ = p.cache.Delete(ctx, cacheKey)
	}
	return nil
}
