package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_rate_limit_cooldowns_total",
		Help: "Total number of 429 observations that recorded a cooldown",
	})

	cooldownSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_rate_limit_cooldown_seconds",
		Help:    "Recorded cooldown durations after 429 responses",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	cooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_rate_limit_waits_total",
		Help: "Total number of requests delayed by an active cooldown",
	})
)

// Tracker gates provider requests behind the shared cooldown state.
// The tracker is advisory: store failures are logged and never block
// requests, since losing the signal is preferable to failing the page.
type Tracker struct {
	store  Store
	logger zerolog.Logger

	defaultCooldown time.Duration
	maxCooldown     time.Duration
}

// NewTracker creates a rate limit tracker on top of a cooldown store.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:           store,
		logger:          logger,
		defaultCooldown: DefaultCooldown,
		maxCooldown:     MaxCooldown,
	}
}

// SetCooldownBounds overrides the default and maximum cooldown (for testing).
func (t *Tracker) SetCooldownBounds(defaultCooldown, maxCooldown time.Duration) {
	t.defaultCooldown = defaultCooldown
	t.maxCooldown = maxCooldown
}

// ObserveRateLimit records a 429 observation. retryAfter is the provider's
// Retry-After hint; zero applies the default cooldown.
func (t *Tracker) ObserveRateLimit(ctx context.Context, retryAfter time.Duration) {
	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = t.defaultCooldown
	}
	if cooldown > t.maxCooldown {
		cooldown = t.maxCooldown
	}

	if err := t.store.SetCooldown(ctx, cooldown); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to record rate limit cooldown")
		return
	}

	cooldownsTotal.Inc()
	cooldownSeconds.Observe(cooldown.Seconds())

	t.logger.Warn().
		Dur("cooldown", cooldown).
		Msg("Provider rate limit observed - cooling down request pool")
}

// Wait blocks until any active cooldown has elapsed or the context is
// cancelled. It returns the context error on cancellation, nil otherwise.
func (t *Tracker) Wait(ctx context.Context) error {
	remaining, err := t.store.CooldownRemaining(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read rate limit cooldown")
		return nil
	}
	if remaining <= 0 {
		return nil
	}

	cooldownWaitsTotal.Inc()

	t.logger.Debug().
		Dur("remaining", remaining).
		Msg("Delaying request for active cooldown")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}
