package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/devcoins/internal/cache"
	"github.com/cam3ron2/devcoins/internal/config"
	"github.com/cam3ron2/devcoins/internal/contrib"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/projects"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GitHubClient is the provider surface the runtime drives.
type GitHubClient interface {
	contrib.DataClient
	RateLimitReader
}

// ProjectStore persists repository rows as projects.
type ProjectStore interface {
	ProjectLister
	Sync(ctx context.Context, repos []contrib.Repository) (int, error)
	Close()
}

// Backends are the external dependencies of a Runtime.
type Backends struct {
	GitHub GitHubClient
	Cache  cache.Store
	// Projects is nil when project persistence is disabled.
	Projects ProjectStore

	closers []func() error
}

// Close releases every backend connection.
func (b *Backends) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	return firstErr
}

const redisPingTimeout = 5 * time.Second

// NewBackends builds the cache, GitHub client and optional project store
// from cfg. A redis cache that cannot be reached falls back to memory; an
// unreachable projects database is an error.
func NewBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backends := &Backends{}
	backends.Cache = newCacheBackend(ctx, cfg, logger, backends)

	client, err := newGitHubClient(cfg)
	if err != nil {
		_ = backends.Close()
		return nil, fmt.Errorf("build github client: %w", err)
	}
	backends.GitHub = client
	if client.AuthMode() == githubapi.AuthModeAnonymous {
		logger.Warn("no github credential configured; requests are unauthenticated and the member directory is unavailable")
	} else {
		logger.Info("github client ready", zap.String("auth_mode", string(client.AuthMode())))
	}

	if cfg.Projects.Enabled() {
		store, err := projects.Open(ctx, cfg.Projects.DatabaseURL, projects.DefaultPoolConfig(), logger.Named("projects"))
		if err != nil {
			_ = backends.Close()
			return nil, fmt.Errorf("open projects store: %w", err)
		}
		backends.Projects = store
		backends.closers = append(backends.closers, func() error {
			store.Close()
			return nil
		})
	}
	return backends, nil
}

func newCacheBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, backends *Backends) cache.Store {
	if !strings.EqualFold(strings.TrimSpace(cfg.Cache.Backend), "redis") {
		return cache.NewMemoryStore()
	}
	redisStore, err := newRedisStoreFromConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to initialize redis cache; falling back to in-memory cache", zap.Error(err))
		return cache.NewMemoryStore()
	}
	backends.closers = append(backends.closers, redisStore.Close)
	return redisStore
}

func newRedisStoreFromConfig(ctx context.Context, cfg *config.Config) (*cache.RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return cache.NewRedisStore(client, cache.RedisStoreConfig{
		Namespace: cfg.Cache.Namespace,
	}), nil
}

func newGitHubClient(cfg *config.Config) (*githubapi.DataClient, error) {
	retry := githubapi.RetryConfig{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		InitialBackoff:   cfg.Retry.InitialBackoff,
		MaxBackoff:       cfg.Retry.MaxBackoff,
		RetryRateLimited: cfg.RateLimit.RetryRateLimited,
	}
	policy := githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		MaxWait:               cfg.RateLimit.MaxWait,
	}

	return githubapi.NewDataClient(githubapi.ClientConfig{
		APIBaseURL: cfg.GitHub.APIBaseURL,
		Credentials: githubapi.Credentials{
			Token:          cfg.GitHub.Token,
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
		},
		Timeout:   cfg.GitHub.RequestTimeout,
		Retry:     retry,
		RateLimit: policy,
	})
}

func newPacers(cfg *config.Config) (page, detail *githubapi.Pacer) {
	page = githubapi.NewPacer(githubapi.PacerConfig{
		PauseEvery:        cfg.Pacing.PagePauseEvery,
		Pause:             cfg.Pacing.PagePause,
		RequestsPerSecond: cfg.RateLimit.MaxRequestsPerSecond,
	})
	detail = githubapi.NewPacer(githubapi.PacerConfig{
		PauseEvery:        cfg.Pacing.DetailPauseEvery,
		Pause:             cfg.Pacing.DetailPause,
		RequestsPerSecond: cfg.RateLimit.MaxRequestsPerSecond,
	})
	return page, detail
}

func serviceConfig(cfg *config.Config) contrib.Config {
	return contrib.Config{
		Org:                   cfg.GitHub.Org,
		HasCredentials:        cfg.GitHub.HasCredentials(),
		RecentPullRequests:    cfg.Aggregation.RecentPullRequests,
		LeaderboardPRPages:    cfg.Aggregation.LeaderboardPullRequestPages,
		CommitSampleSize:      cfg.Aggregation.CommitSampleSize,
		UserCommitDetailLimit: cfg.Aggregation.UserCommitDetailLimit,
		UserCommitsPerRepo:    cfg.Aggregation.UserCommitsPerRepo,
		LeaderboardTTL:        cfg.Cache.LeaderboardTTL,
		MembersTTL:            cfg.Cache.MembersTTL,
	}
}
