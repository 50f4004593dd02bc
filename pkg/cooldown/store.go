// Package cooldown pauses purge requests after the API asks clients to back off.
// It records the deadline from a 429 Retry-After header so that every chunk
// sharing the store waits before its next attempt, not only the one that was
// throttled.
package cooldown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyBlockedUntil holds the cooldown deadline in Unix milliseconds.
const RedisKeyBlockedUntil = "fastpurge:cooldown:until"

// Store persists the time until which requests must pause.
type Store interface {
	// BlockedUntil returns the current deadline, or the zero time if none.
	BlockedUntil(ctx context.Context) (time.Time, error)

	// Extend sets the deadline to until unless a later one is already stored.
	Extend(ctx context.Context, until time.Time) error
}

// MemoryStore keeps the deadline in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	until time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// BlockedUntil implements Store.
func (m *MemoryStore) BlockedUntil(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.until, nil
}

// Extend implements Store.
func (m *MemoryStore) Extend(_ context.Context, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.until) {
		m.until = until
	}
	return nil
}

// extendScript only moves the deadline forward and expires it once passed.
var extendScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

// RedisStore shares the deadline between processes through Redis.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a store using RedisKeyBlockedUntil.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		key:   RedisKeyBlockedUntil,
	}
}

// BlockedUntil implements Store.
func (r *RedisStore) BlockedUntil(ctx context.Context) (time.Time, error) {
	ms, err := r.redis.Get(ctx, r.key).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cooldown deadline: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// Extend implements Store.
func (r *RedisStore) Extend(ctx context.Context, until time.Time) error {
	ttl := time.Until(until).Milliseconds()
	if ttl <= 0 {
		return nil
	}

	if err := extendScript.Run(ctx, r.redis, []string{r.key}, until.UnixMilli(), ttl).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("store cooldown deadline in redis: %w", err)
	}
	return nil
}
