package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/devcoins/internal/cache"
	"github.com/cam3ron2/devcoins/internal/config"
	"github.com/cam3ron2/devcoins/internal/contrib"
	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/exporter"
	"github.com/cam3ron2/devcoins/internal/health"
	"github.com/cam3ron2/devcoins/internal/telemetry"
	"go.uber.org/zap"
)

// Runtime is the application runtime orchestrator. It owns the aggregation
// service, the HTTP surface and the cache refresher.
type Runtime struct {
	cfg       *config.Config
	backends  *Backends
	service   *contrib.Service
	snapshot  *exporter.LeaderboardSnapshot
	recorder  *exporter.Recorder
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	mu                  sync.RWMutex
	cacheHealthy        bool
	githubClientUsable  bool
	githubHealthy       bool
	refresherHealthy    bool
	projectsHealthy     bool
	githubCooldownUntil time.Time
	githubFailureStreak int
	lastRefresh         time.Time

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime over backends.
func NewRuntime(cfg *config.Config, backends *Backends, logger ...*zap.Logger) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if backends == nil {
		backends = &Backends{}
	}
	if backends.Cache == nil {
		backends.Cache = cache.NewMemoryStore()
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	snapshot := exporter.NewLeaderboardSnapshot(cfg.GitHub.Org, nil)
	recorder := exporter.NewRecorder(snapshot)
	pagePacer, detailPacer := newPacers(cfg)

	var client contrib.DataClient
	if backends.GitHub != nil {
		client = backends.GitHub
	}
	service := contrib.NewService(
		client,
		backends.Cache,
		serviceConfig(cfg),
		contrib.WithLogger(baseLogger.Named("contrib")),
		contrib.WithPacers(pagePacer, detailPacer),
		contrib.WithObserver(recorder),
	)

	return &Runtime{
		cfg:                cfg,
		backends:           backends,
		service:            service,
		snapshot:           snapshot,
		recorder:           recorder,
		evaluator:          health.NewStatusEvaluator(),
		logger:             baseLogger,
		cacheHealthy:       true,
		githubClientUsable: backends.GitHub != nil,
		githubHealthy:      true,
		refresherHealthy:   true,
		projectsHealthy:    true,
		Now:                time.Now,
	}
}

// Service exposes the aggregation service.
func (r *Runtime) Service() *contrib.Service {
	return r.service
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	metricsHandler := exporter.NewOpenMetricsHandler(r.snapshot, r.recorder)
	healthHandler := health.NewHandler(r)

	deps := APIDeps{
		Service:  r.service,
		Store:    r.backends.Cache,
		Observer: r.recorder,
		Logger:   r.logger.Named("api"),
	}
	if r.backends.GitHub != nil {
		deps.RateLimit = r.backends.GitHub
	}
	if r.backends.Projects != nil {
		deps.Projects = r.backends.Projects
	}
	return NewHTTPHandler(NewAPI(deps), metricsHandler, healthHandler, RouterConfig{
		CORSAllowedOrigins: r.cfg.Server.CORSAllowedOrigins,
		TraceMode:          string(telemetry.TraceMode()),
	})
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		CacheHealthy:       r.cacheHealthy,
		GitHubClientUsable: r.githubClientUsable,
		GitHubHealthy:      r.githubHealthy,
		RefresherEnabled:   r.refreshInterval() > 0,
		RefresherHealthy:   r.refresherHealthy,
		ProjectsEnabled:    r.backends.Projects != nil,
		ProjectsHealthy:    r.projectsHealthy,

		LastRefresh:         r.lastRefresh,
		GitHubCooldownUntil: r.githubCooldownUntil,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// RunRefresher rebuilds the cached aggregates every refresh interval until
// ctx is done. It returns immediately when refreshing is disabled.
func (r *Runtime) RunRefresher(ctx context.Context) error {
	interval := r.refreshInterval()
	if interval <= 0 {
		r.logger.Info("cache refresher disabled")
		return nil
	}
	r.logger.Info(
		"starting cache refresher",
		zap.String("org", r.cfg.GitHub.Org),
		zap.Duration("interval", interval),
		zap.Bool("projects_enabled", r.backends.Projects != nil),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.runRefreshCycleLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("cache refresher stopped")
			return nil
		case <-ticker.C:
			r.runRefreshCycleLogged(ctx)
		}
	}
}

func (r *Runtime) runRefreshCycleLogged(ctx context.Context) {
	cycleCtx := ctx
	if timeout := r.cfg.Refresh.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := r.RunRefreshCycle(cycleCtx); err != nil && ctx.Err() == nil {
		r.logger.Warn("cache refresh cycle finished with errors", zap.Error(err))
	}
}

// RunRefreshCycle invalidates and rebuilds every cached leaderboard and the
// member directory, then syncs projects. GitHub failures that exceed the
// configured threshold pause refreshing for the cooldown.
func (r *Runtime) RunRefreshCycle(ctx context.Context) error {
	now := r.Now()
	cycleStart := time.Now()

	if r.shouldSkipGitHub(now) {
		r.logger.Info("skipping refresh cycle during github cooldown", zap.Time("cooldown_until", r.cooldownUntil()))
		return nil
	}

	var (
		resultErr     error
		githubFailed  bool
		cacheFailed   bool
		projectsError error
		refreshed     int
	)
	join := func(err error) {
		resultErr = errors.Join(resultErr, err)
	}

	for _, tf := range contrib.TimeFrames {
		key := cache.LeaderboardKey(string(tf))
		if err := r.backends.Cache.Invalidate(ctx, key); err != nil {
			cacheFailed = true
			join(err)
			continue
		}
		rows, report, err := r.service.FetchLeaderboard(ctx, tf)
		if err != nil {
			githubFailed = githubFailed || isProviderFailure(err)
			join(err)
			continue
		}
		refreshed++
		r.logger.Debug(
			"leaderboard refreshed",
			zap.String("timeframe", string(tf)),
			zap.Int("users", len(rows)),
			zap.Int("skipped", report.Total()),
		)
	}

	if r.cfg.GitHub.HasCredentials() {
		if err := r.backends.Cache.Invalidate(ctx, cache.KeyOrganizationMembers); err != nil {
			cacheFailed = true
			join(err)
		} else if _, _, err := r.service.FetchOrganizationMembers(ctx); err != nil {
			githubFailed = githubFailed || isProviderFailure(err)
			join(err)
		} else {
			refreshed++
		}
	}

	if r.backends.Projects != nil {
		repos, _, err := r.service.FetchRepositories(ctx)
		if err != nil {
			githubFailed = githubFailed || isProviderFailure(err)
			join(err)
		} else if inserted, syncErr := r.backends.Projects.Sync(ctx, repos); syncErr != nil {
			projectsError = syncErr
			join(syncErr)
		} else {
			r.logger.Debug("projects synced", zap.Int("repositories", len(repos)), zap.Int("inserted", inserted))
		}
	}

	r.mu.Lock()
	r.cacheHealthy = !cacheFailed
	if r.backends.Projects != nil {
		r.projectsHealthy = projectsError == nil
	}
	r.refresherHealthy = resultErr == nil
	r.updateGitHubHealthLocked(now, !githubFailed)
	r.lastRefresh = now
	githubHealthy := r.githubHealthy
	r.mu.Unlock()

	r.logger.Info(
		"cache refresh cycle completed",
		zap.Int("aggregates_refreshed", refreshed),
		zap.Bool("github_healthy", githubHealthy),
		zap.Bool("cache_healthy", !cacheFailed),
		zap.Duration("duration", time.Since(cycleStart)),
	)
	return resultErr
}

// LastRefresh returns when the last refresh cycle completed.
func (r *Runtime) LastRefresh() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

func (r *Runtime) refreshInterval() time.Duration {
	return r.cfg.Refresh.Interval
}

func (r *Runtime) shouldSkipGitHub(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.githubCooldownUntil.IsZero() && now.Before(r.githubCooldownUntil)
}

func (r *Runtime) cooldownUntil() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.githubCooldownUntil
}

func (r *Runtime) updateGitHubHealthLocked(now time.Time, cycleSuccessful bool) {
	threshold := r.cfg.GitHub.UnhealthyFailureThreshold
	if threshold <= 0 {
		threshold = 1
	}
	cooldown := r.cfg.GitHub.UnhealthyCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	if cycleSuccessful {
		r.githubFailureStreak = 0
		r.githubHealthy = true
		r.githubCooldownUntil = time.Time{}
		return
	}

	r.githubFailureStreak++
	if r.githubFailureStreak >= threshold {
		r.githubHealthy = false
		r.githubCooldownUntil = now.Add(cooldown)
	}
}

// isProviderFailure reports whether err came from GitHub rejecting or
// throttling the service, as opposed to caller input or cancellation.
func isProviderFailure(err error) bool {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeAuthentication, perr.ErrorCodePermissionOrRateLimit, perr.ErrorCodeNotFound:
		return true
	default:
		return false
	}
}
