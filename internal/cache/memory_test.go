package cache

import (
	"context"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMemoryStoreForTest(t *testing.T) (*MemoryStore, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Unix(1739836800, 0)}
	store := NewMemoryStore()
	store.Now = clock.Now
	return store, clock
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newMemoryStoreForTest(t)

	if err := store.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get() = %q, %t, %v; want v, true, nil", got, ok, err)
	}

	clock.Advance(100 * time.Millisecond)
	if ok, _ := store.Has(ctx, "k"); !ok {
		t.Fatalf("Has() at exactly ttl = false, want true")
	}

	clock.Advance(50 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("Get() after 150ms ok = true, want false")
	}
	if ok, _ := store.Has(ctx, "k"); ok {
		t.Fatalf("Has() after 150ms = true, want false")
	}
	if store.Len() != 0 {
		t.Fatalf("Len() = %d, want expired entry removed", store.Len())
	}
}

func TestMemoryStoreOperations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newMemoryStoreForTest(t)

	_ = store.Set(ctx, KeyLeaderboardAll, []byte("a"), 2*time.Hour)
	_ = store.Set(ctx, KeyOrganizationMembers, []byte("m"), 5*time.Hour)

	clock.Advance(30 * time.Minute)
	remaining, ok, err := store.TimeRemaining(ctx, KeyLeaderboardAll)
	if err != nil || !ok {
		t.Fatalf("TimeRemaining() ok=%t err=%v", ok, err)
	}
	if remaining != 90*time.Minute {
		t.Fatalf("TimeRemaining() = %s, want 1h30m", remaining)
	}
	if _, ok, _ := store.TimeRemaining(ctx, "missing"); ok {
		t.Fatalf("TimeRemaining(missing) ok = true")
	}

	if err := store.Invalidate(ctx, KeyLeaderboardAll); err != nil {
		t.Fatalf("Invalidate() unexpected error: %v", err)
	}
	if ok, _ := store.Has(ctx, KeyLeaderboardAll); ok {
		t.Fatalf("Has() after Invalidate = true")
	}

	if err := store.Set(ctx, KeyOrganizationMembers, []byte("m"), 0); err != nil {
		t.Fatalf("Set(ttl=0) unexpected error: %v", err)
	}
	if ok, _ := store.Has(ctx, KeyOrganizationMembers); ok {
		t.Fatalf("Has() after Set(ttl=0) = true")
	}

	_ = store.Set(ctx, KeyLeaderboardWeek, []byte("w"), time.Hour)
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() unexpected error: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", store.Len())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newMemoryStoreForTest(t)

	value := []byte("abc")
	_ = store.Set(ctx, "k", value, time.Minute)
	value[0] = 'z'

	got, _, _ := store.Get(ctx, "k")
	got[1] = 'z'

	again, _, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored payload mutated: %q", again)
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	type row struct {
		Username string `json:"username"`
		DevCoins int    `json:"devCoins"`
	}

	ctx := context.Background()
	store, _ := newMemoryStoreForTest(t)

	want := []row{{Username: "alice", DevCoins: 90}}
	if err := SetJSON(ctx, store, LeaderboardKey("all"), want, time.Hour); err != nil {
		t.Fatalf("SetJSON() unexpected error: %v", err)
	}
	got, ok, err := GetJSON[[]row](ctx, store, KeyLeaderboardAll)
	if err != nil || !ok {
		t.Fatalf("GetJSON() ok=%t err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("GetJSON() = %+v, want %+v", got, want)
	}

	_ = store.Set(ctx, "corrupt", []byte("{"), time.Hour)
	if _, ok, err := GetJSON[[]row](ctx, store, "corrupt"); ok || err != nil {
		t.Fatalf("GetJSON(corrupt) ok=%t err=%v, want miss", ok, err)
	}
	if ok, _ := store.Has(ctx, "corrupt"); ok {
		t.Fatalf("corrupt entry not invalidated")
	}
}
