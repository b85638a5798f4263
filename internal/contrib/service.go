// Package contrib builds the repository list, leaderboard and member
// directory from the GitHub API and scores them in Dev Coins.
//
// Provider calls are issued one at a time. Every per-item failure is logged,
// skipped and counted in a Report; only failures that stop a whole operation
// (rejected credentials, missing organization) are returned as errors.
package contrib

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cam3ron2/devcoins/internal/cache"
	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "devcoins/internal/contrib"

const (
	listPageSize     = 100
	maxSearchPages   = 10
	defaultDetailCap = 20
)

// DataClient is the typed GitHub API consumed by the aggregators.
type DataClient interface {
	ListOrgRepos(ctx context.Context, org string, page int) ([]githubapi.Repository, int, error)
	ListUserRepos(ctx context.Context, page int) ([]githubapi.Repository, int, error)
	SearchRepos(ctx context.Context, query string, page int) ([]githubapi.Repository, int, error)
	GetRepo(ctx context.Context, owner, name string) (githubapi.RepositoryDetail, error)
	ListPullRequests(ctx context.Context, owner, repo string, page, perPage int) ([]githubapi.PullRequest, int, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (githubapi.PullRequest, error)
	ListCommits(
		ctx context.Context,
		owner, repo string,
		query githubapi.CommitQuery,
		page, perPage int,
	) ([]githubapi.Commit, int, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (githubapi.CommitDetail, error)
	ListOrgMembers(ctx context.Context, org, role string, page int) ([]githubapi.Member, int, error)
	ListOutsideCollaborators(ctx context.Context, org string, page int) ([]githubapi.Member, int, error)
	ListTeams(ctx context.Context, org string, page int) ([]githubapi.Team, int, error)
	ListTeamMembers(ctx context.Context, org, teamSlug string, page int) ([]githubapi.Member, int, error)
	ListRepoAdmins(ctx context.Context, owner, repo string, page int) ([]githubapi.Member, int, error)
	GetUser(ctx context.Context, login string) (githubapi.UserProfile, error)
	SearchIssues(ctx context.Context, query string, page int) ([]githubapi.IssueSearchItem, int, error)
}

// Observer receives build results. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveBuild(operation string, report Report, duration time.Duration, err error)
	ObserveLeaderboard(timeFrame TimeFrame, rows []UserStats)
}

// Config configures a Service.
type Config struct {
	Org string
	// HasCredentials is false when no token or app installation is configured.
	HasCredentials bool

	RecentPullRequests    int
	LeaderboardPRPages    int
	CommitSampleSize      int
	UserCommitDetailLimit int
	UserCommitsPerRepo    int
	LeaderboardTTL        time.Duration
	MembersTTL            time.Duration
	DirectCommitBonus     int
}

// Service implements the repository fetcher, commit aggregator, leaderboard
// builder and member directory builder over one organization.
type Service struct {
	client      DataClient
	store       cache.Store
	cfg         Config
	pagePacer   *githubapi.Pacer
	detailPacer *githubapi.Pacer
	logger      *zap.Logger
	observer    Observer

	// Now is injected for testability.
	Now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPacers sets the pacers consulted between pages and between detail lookups.
func WithPacers(page, detail *githubapi.Pacer) Option {
	return func(s *Service) {
		s.pagePacer = page
		s.detailPacer = detail
	}
}

// WithObserver sets the build observer.
func WithObserver(observer Observer) Option {
	return func(s *Service) { s.observer = observer }
}

// NewService creates a Service. A nil store disables caching.
func NewService(client DataClient, store cache.Store, cfg Config, opts ...Option) *Service {
	if cfg.RecentPullRequests <= 0 {
		cfg.RecentPullRequests = 30
	}
	if cfg.LeaderboardPRPages <= 0 {
		cfg.LeaderboardPRPages = 1
	}
	if cfg.CommitSampleSize < 0 {
		cfg.CommitSampleSize = 0
	}
	if cfg.UserCommitDetailLimit <= 0 {
		cfg.UserCommitDetailLimit = defaultDetailCap
	}
	if cfg.UserCommitsPerRepo <= 0 {
		cfg.UserCommitsPerRepo = listPageSize
	}
	if cfg.LeaderboardTTL <= 0 {
		cfg.LeaderboardTTL = 2 * time.Hour
	}
	if cfg.MembersTTL <= 0 {
		cfg.MembersTTL = 5 * time.Hour
	}
	if cfg.DirectCommitBonus <= 0 {
		cfg.DirectCommitBonus = 2
	}

	s := &Service{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireClient rejects builds on a Service constructed without a client.
func (s *Service) requireClient() error {
	if s.client == nil {
		return perr.Configurationf("github client is not configured")
	}
	return nil
}

// Org returns the organization the service aggregates.
func (s *Service) Org() string {
	return s.cfg.Org
}

// build tracks one top-level operation for tracing and the observer.
type build struct {
	s         *Service
	operation string
	started   time.Time
	span      *telemetry.OperationSpan
}

func (s *Service) startBuild(ctx context.Context, operation string) (context.Context, *build) {
	ctx, span := telemetry.StartOperationSpan(ctx, tracerName, operation, attribute.String("github.org", s.cfg.Org))
	return ctx, &build{s: s, operation: operation, started: s.Now(), span: span}
}

func (b *build) finish(report Report, err error) {
	skipped := make(map[string]int, len(report.Skipped))
	for reason, count := range report.Skipped {
		skipped[string(reason)] = count
	}
	b.span.End(err, skipped)
	if b.s.observer != nil {
		b.s.observer.ObserveBuild(b.operation, report, b.s.Now().Sub(b.started), err)
	}
}

// pace waits on the detail pacer before a per-item lookup.
func (s *Service) pace(ctx context.Context) error {
	return s.detailPacer.Wait(ctx)
}

// skip logs a skipped item at warn and returns the matching outcome.
func skip[T any](logger *zap.Logger, reason SkipReason, err error, fields ...zap.Field) Outcome[T] {
	logger.Warn("skipping item", append(fields, zap.String("reason", string(reason)), zap.Error(err))...)
	return Skipped[T](reason, err)
}

// typedError maps a provider failure that stops a whole operation onto the
// coded error taxonomy. It returns nil for failures that only degrade.
func typedError(op, org string, err error) error {
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return err
	}
	switch githubapi.StatusOf(err) {
	case githubapi.EndpointStatusUnauthorized:
		return perr.WithOp(perr.Wrap(err, perr.ErrorCodeAuthentication, "github rejected the configured credential"), op)
	case githubapi.EndpointStatusForbidden, githubapi.EndpointStatusRateLimited:
		return perr.WithOp(perr.Wrap(err, perr.ErrorCodePermissionOrRateLimit, "github denied access or the rate limit is exhausted"), op)
	case githubapi.EndpointStatusNotFound:
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeNotFound, "organization %q not found", org), op)
	default:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sameLogin(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func readCache[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var zero T
	if s.store == nil {
		return zero, false
	}
	value, ok, err := cache.GetJSON[T](ctx, s.store, key)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return value, ok
}

func writeCache[T any](ctx context.Context, s *Service, key string, value T, ttl time.Duration) {
	if s.store == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.store, key, value, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
