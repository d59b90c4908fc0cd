package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the cooldown state. Implementations must be safe for
// concurrent use; workers read and update the state in parallel.
type Store interface {
	// CooldownRemaining returns the time left on the active cooldown,
	// or zero when none is active.
	CooldownRemaining(ctx context.Context) (time.Duration, error)

	// SetCooldown records a cooldown expiring after d. A longer cooldown
	// already in effect is kept.
	SetCooldown(ctx context.Context, d time.Duration) error
}

// MemoryStore keeps the cooldown state in process memory, guarded by a
// mutex. This is the right store for a single-instance deployment.
type MemoryStore struct {
	mu    sync.Mutex
	until time.Time
}

// NewMemoryStore creates an in-process cooldown store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CooldownRemaining implements Store.
func (s *MemoryStore) CooldownRemaining(_ context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := time.Until(s.until)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// SetCooldown implements Store.
func (s *MemoryStore) SetCooldown(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(s.until) {
		s.until = until
	}
	return nil
}

// RedisStore shares the cooldown state across instances via Redis.
// The cooldown is a single key whose TTL is the remaining cooldown.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed cooldown store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// CooldownRemaining implements Store.
func (s *RedisStore) CooldownRemaining(ctx context.Context) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, RedisKeyCooldownUntil).Result()
	if err != nil {
		return 0, err
	}
	// Negative TTL means no key or no expiry; either way no cooldown.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// SetCooldown implements Store.
func (s *RedisStore) SetCooldown(ctx context.Context, d time.Duration) error {
	ttl, err := s.redis.PTTL(ctx, RedisKeyCooldownUntil).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if ttl >= d {
		// A longer cooldown is already in effect.
		return nil
	}
	return s.redis.Set(ctx, RedisKeyCooldownUntil, 1, d).Err()
}
