package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisClient struct {
	mu        sync.Mutex
	now       time.Time
	strings   map[string]string
	sets      map[string]map[string]struct{}
	expiresAt map[string]time.Time
	getErr    error
}

func newFakeRedisClient(now time.Time) *fakeRedisClient {
	return &fakeRedisClient{
		now:       now,
		strings:   make(map[string]string),
		sets:      make(map[string]map[string]struct{}),
		expiresAt: make(map[string]time.Time),
	}
}

func (c *fakeRedisClient) Advance(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(duration)
}

func (c *fakeRedisClient) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeRedisClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getErr != nil {
		return redis.NewStringResult("", c.getErr)
	}
	c.purgeIfExpiredLocked(key)
	value, ok := c.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (c *fakeRedisClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch typed := value.(type) {
	case []byte:
		c.strings[key] = string(typed)
	default:
		c.strings[key] = fmt.Sprint(typed)
	}
	delete(c.expiresAt, key)
	if expiration > 0 {
		c.expiresAt[key] = c.now.Add(expiration)
	}
	return redis.NewStatusResult("OK", nil)
}

func (c *fakeRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := int64(0)
	for _, key := range keys {
		if _, ok := c.strings[key]; ok {
			delete(c.strings, key)
			removed++
		}
		if _, ok := c.sets[key]; ok {
			delete(c.sets, key)
			removed++
		}
		delete(c.expiresAt, key)
	}
	return redis.NewIntResult(removed, nil)
}

func (c *fakeRedisClient) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sets[key]; !ok {
		c.sets[key] = make(map[string]struct{})
	}
	added := int64(0)
	for _, member := range members {
		memberKey := fmt.Sprint(member)
		if _, ok := c.sets[key][memberKey]; ok {
			continue
		}
		c.sets[key][memberKey] = struct{}{}
		added++
	}
	return redis.NewIntResult(added, nil)
}

func (c *fakeRedisClient) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	members := make([]string, 0, len(c.sets[key]))
	for member := range c.sets[key] {
		members = append(members, member)
	}
	return redis.NewStringSliceResult(members, nil)
}

func (c *fakeRedisClient) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := int64(0)
	for _, member := range members {
		memberKey := fmt.Sprint(member)
		if _, ok := c.sets[key][memberKey]; ok {
			delete(c.sets[key], memberKey)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (c *fakeRedisClient) purgeIfExpiredLocked(key string) {
	expiresAt, ok := c.expiresAt[key]
	if !ok || c.now.Before(expiresAt) {
		return
	}
	delete(c.strings, key)
	delete(c.expiresAt, key)
}

func newRedisStoreForTest(t *testing.T) (*RedisStore, *fakeRedisClient) {
	t.Helper()

	client := newFakeRedisClient(time.Unix(1739836800, 0))
	store := newRedisStoreFromCommander(client, nil, RedisStoreConfig{Namespace: "test"})
	store.Now = client.Now
	return store, client
}

func TestRedisStoreSetGetExpire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, client := newRedisStoreForTest(t)

	if err := store.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get() = %q, %t, %v; want v, true, nil", got, ok, err)
	}
	if _, ok := client.strings["test:cache:k"]; !ok {
		t.Fatalf("entry not written under namespaced key")
	}

	client.Advance(50 * time.Millisecond)
	remaining, ok, err := store.TimeRemaining(ctx, "k")
	if err != nil || !ok || remaining != 50*time.Millisecond {
		t.Fatalf("TimeRemaining() = %s, %t, %v; want 50ms", remaining, ok, err)
	}

	client.Advance(100 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get() after expiry ok=%t err=%v, want miss", ok, err)
	}
	if ok, _ := store.Has(ctx, "k"); ok {
		t.Fatalf("Has() after expiry = true")
	}
}

func TestRedisStoreEnvelopeExpiryWithoutServerTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, client := newRedisStoreForTest(t)

	if err := store.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	// Simulate a server that has not yet evicted the key.
	delete(client.expiresAt, "test:cache:k")
	client.Advance(2 * time.Second)

	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("Get() returned entry past its envelope ttl")
	}
	if _, ok := client.strings["test:cache:k"]; ok {
		t.Fatalf("expired entry not deleted on read")
	}
}

func TestRedisStoreClearAndInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, client := newRedisStoreForTest(t)

	for _, key := range []string{KeyLeaderboardAll, KeyLeaderboardWeek, KeyOrganizationMembers} {
		if err := store.Set(ctx, key, []byte(key), time.Hour); err != nil {
			t.Fatalf("Set(%s) unexpected error: %v", key, err)
		}
	}

	if err := store.Invalidate(ctx, KeyLeaderboardWeek); err != nil {
		t.Fatalf("Invalidate() unexpected error: %v", err)
	}
	if ok, _ := store.Has(ctx, KeyLeaderboardWeek); ok {
		t.Fatalf("Has() after Invalidate = true")
	}
	if got := len(client.sets["test:cache_index"]); got != 2 {
		t.Fatalf("index size = %d, want 2", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() unexpected error: %v", err)
	}
	if len(client.strings) != 0 || len(client.sets) != 0 {
		t.Fatalf("Clear() left strings=%d sets=%d", len(client.strings), len(client.sets))
	}
}

func TestRedisStoreErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, client := newRedisStoreForTest(t)
	client.getErr = fmt.Errorf("connection reset")

	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("Get() expected error, got nil")
	}

	var nilStore *RedisStore
	if err := nilStore.Set(ctx, "k", nil, time.Second); err == nil {
		t.Fatalf("nil Set() expected error")
	}
	if err := nilStore.Close(); err != nil {
		t.Fatalf("nil Close() unexpected error: %v", err)
	}
}
