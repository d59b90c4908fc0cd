// Package ratelimit implements the shared rate-limit cooldown signal for
// the provider client. When any worker observes a 429 response, a cooldown
// is recorded and every worker delays its next request until the cooldown
// elapses, instead of each worker backing off independently.
package ratelimit

import (
	"time"
)

// RedisKeyCooldownUntil stores the active cooldown in the Redis-backed store.
const RedisKeyCooldownUntil = "provider:rate_limit:cooldown"

// Cooldown bounds.
const (
	// DefaultCooldown is applied when the provider sends no Retry-After hint.
	DefaultCooldown = 2 * time.Second

	// MaxCooldown caps provider-supplied Retry-After values so a bogus
	// header cannot stall the pool indefinitely.
	MaxCooldown = 60 * time.Second
)
