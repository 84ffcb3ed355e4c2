package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/botirjon13/oyin-backent/internal/domain"
)

const cacheKey = "leaderboard:top"

// KV is the key-value surface the cache needs. Both pkg/redis.Client and
// its instrumented wrapper satisfy it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache holds the rendered top-N listing in Redis for a short TTL so the
// hot leaderboard read does not hit Postgres on every request.
type Cache struct {
	kv KV
}

// NewCache constructs a leaderboard cache backed by the provided store.
// A nil store disables caching.
func NewCache(kv KV) *Cache {
	return &Cache{kv: kv}
}

// Get fetches the cached listing, returning nil on a miss.
func (c *Cache) Get(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if c == nil || c.kv == nil {
		return nil, nil
	}

	data, err := c.kv.Get(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached leaderboard: %w", err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("decode cached leaderboard: %w", err)
	}

	return entries, nil
}

// Set stores the listing for the provided TTL.
func (c *Cache) Set(ctx context.Context, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	if c == nil || c.kv == nil || len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard for cache: %w", err)
	}

	if err := c.kv.Set(ctx, cacheKey, payload, ttl); err != nil {
		return fmt.Errorf("set cached leaderboard: %w", err)
	}

	return nil
}

// Invalidate drops the cached listing.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.kv == nil {
		return nil
	}

	if err := c.kv.Delete(ctx, cacheKey); err != nil {
		return fmt.Errorf("delete cached leaderboard: %w", err)
	}

	return nil
}
