package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/devcoins/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const redisTracerName = "devcoins/internal/cache"

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// RedisStoreConfig configures the Redis-backed cache.
type RedisStoreConfig struct {
	Namespace string
}

// RedisStore shares cache entries between replicas through Redis.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	// Now is injected for testability.
	Now func() time.Time
}

type redisEnvelope struct {
	CreatedAtUnixMilli int64  `json:"created_at_unix_ms"`
	TTLMilli           int64  `json:"ttl_ms"`
	Payload            []byte `json:"payload"`
}

// NewRedisStore creates a Redis-backed cache.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "devcoins"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		Now:       time.Now,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Get returns the payload for key when the entry is still valid.
func (s *RedisStore) Get(ctx context.Context, key string) (payload []byte, ok bool, err error) {
	ctx, finish := telemetry.StartDependencySpan(ctx, redisTracerName, "redis.cache_get",
		attribute.String("cache.key", key))
	defer func() { finish(err) }()

	current, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return current.payload, true, nil
}

// Set stores value for ttl. A non-positive ttl removes the key.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	if ttl <= 0 {
		return s.Invalidate(ctx, key)
	}

	ctx, finish := telemetry.StartDependencySpan(ctx, redisTracerName, "redis.cache_set",
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
	)
	defer func() { finish(err) }()

	encoded, err := json.Marshal(redisEnvelope{
		CreatedAtUnixMilli: s.Now().UnixMilli(),
		TTLMilli:           ttl.Milliseconds(),
		Payload:            value,
	})
	if err != nil {
		return fmt.Errorf("encode cache envelope: %w", err)
	}
	if err := s.client.Set(ctx, s.entryKey(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), key).Err(); err != nil {
		return fmt.Errorf("index cache entry: %w", err)
	}
	return nil
}

// Has reports whether a valid entry exists.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.load(ctx, key)
	return ok, err
}

// Invalidate removes key.
func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	if err := s.client.Del(ctx, s.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	if err := s.client.SRem(ctx, s.indexKey(), key).Err(); err != nil {
		return fmt.Errorf("unindex cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry written through this namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("list cache index: %w", err)
	}

	redisKeys := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		redisKeys = append(redisKeys, s.entryKey(key))
	}
	redisKeys = append(redisKeys, s.indexKey())
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	return nil
}

// TimeRemaining reports the validity left on key.
func (s *RedisStore) TimeRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	current, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	return current.remaining(s.Now()), true, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (entry, bool, error) {
	if s == nil || s.client == nil {
		return entry{}, false, fmt.Errorf("redis cache is not initialized")
	}

	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		_ = s.Invalidate(ctx, key)
		return entry{}, false, nil
	}
	current := entry{
		payload:   envelope.Payload,
		createdAt: time.UnixMilli(envelope.CreatedAtUnixMilli),
		ttl:       time.Duration(envelope.TTLMilli) * time.Millisecond,
	}
	if current.expired(s.Now()) {
		if err := s.Invalidate(ctx, key); err != nil {
			return entry{}, false, err
		}
		return entry{}, false, nil
	}
	return current, true, nil
}

func (s *RedisStore) entryKey(key string) string {
	return s.namespace + ":cache:" + key
}

func (s *RedisStore) indexKey() string {
	return s.namespace + ":cache_index"
}
