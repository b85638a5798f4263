// Package cache provides the expiring key/value layer the aggregators read
// through. Entries are valid while now - createdAt <= ttl; an expired read
// deletes the entry and reports a miss. There is no background sweep.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known keys.
const (
	KeyOrganizationMembers = "organization_members"
	KeyLeaderboardAll      = "leaderboard_all"
	KeyLeaderboardMonth    = "leaderboard_month"
	KeyLeaderboardWeek     = "leaderboard_week"
)

// LeaderboardKey returns the cache key for a timeframe label (all, month, week).
func LeaderboardKey(timeFrame string) string {
	return "leaderboard_" + timeFrame
}

// Store is an expiring key/value store. Implementations must be safe for
// concurrent use with last-writer-wins semantics per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// TimeRemaining reports how long the entry stays valid; ok is false on a miss.
	TimeRemaining(ctx context.Context, key string) (time.Duration, bool, error)
}

// GetJSON reads and decodes a JSON value. A decode failure is treated as a miss
// and the entry is invalidated.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var zero T
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		_ = store.Invalidate(ctx, key)
		return zero, false, nil
	}
	return value, true, nil
}

// SetJSON encodes and stores a JSON value.
func SetJSON[T any](ctx context.Context, store Store, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}

type entry struct {
	payload   []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

func (e entry) remaining(now time.Time) time.Duration {
	left := e.ttl - now.Sub(e.createdAt)
	if left < 0 {
		return 0
	}
	return left
}
