package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/cam3ron2/devcoins/internal/cache"
	"github.com/cam3ron2/devcoins/internal/contrib"
	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/projects"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Aggregator is the read side of contrib.Service served by the API.
type Aggregator interface {
	FetchRepositories(ctx context.Context) ([]contrib.Repository, contrib.Report, error)
	FetchRepositoryCommitHistory(ctx context.Context, owner, repo string, tf contrib.TimeFrame) (map[string]contrib.AuthorCommits, contrib.Report, error)
	FetchLeaderboard(ctx context.Context, tf contrib.TimeFrame) ([]contrib.UserStats, contrib.Report, error)
	FetchAdminDirectCommits(ctx context.Context, tf contrib.TimeFrame) (contrib.DirectCommitScan, contrib.Report, error)
	FetchOrganizationMembers(ctx context.Context) ([]contrib.GithubMember, contrib.Report, error)
	FetchUserCommits(ctx context.Context, username string, tf contrib.TimeFrame) ([]contrib.CommitRecord, contrib.Report, error)
	FetchUserContributions(ctx context.Context, username string) ([]contrib.UserContribution, contrib.Report, error)
}

// RateLimitReader reads the provider's remaining request budget.
type RateLimitReader interface {
	RateLimit(ctx context.Context) (githubapi.RateLimit, error)
}

// ProjectLister lists persisted projects.
type ProjectLister interface {
	List(ctx context.Context) ([]projects.Project, error)
}

// CacheObserver records cache hits and misses.
type CacheObserver interface {
	ObserveCacheLookup(operation string, hit bool)
}

// API serves the dashboard's JSON endpoints.
type API struct {
	service   Aggregator
	rateLimit RateLimitReader
	projects  ProjectLister
	store     cache.Store
	observer  CacheObserver
	validate  *validator.Validate
	logger    *zap.Logger
}

// APIDeps are the collaborators of an API. Nil RateLimit, Projects or Store
// turn their endpoints into not-found errors.
type APIDeps struct {
	Service   Aggregator
	RateLimit RateLimitReader
	Projects  ProjectLister
	Store     cache.Store
	Observer  CacheObserver
	Logger    *zap.Logger
}

// Envelope is the JSON body of every API response.
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Data       any    `json:"data,omitempty"`
}

type timeFrameQuery struct {
	TimeFrame string `json:"timeframe" validate:"omitempty,oneof=all month week"`
}

type userParams struct {
	Username  string `json:"username" validate:"required,github_login"`
	TimeFrame string `json:"timeframe" validate:"omitempty,oneof=all month week"`
}

type repositoryParams struct {
	Owner     string `json:"owner" validate:"required,github_login"`
	Repo      string `json:"repo" validate:"required,max=100,github_repo"`
	TimeFrame string `json:"timeframe" validate:"omitempty,oneof=all month week"`
}

var (
	loginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// NewAPI creates an API.
func NewAPI(deps APIDeps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:   deps.Service,
		rateLimit: deps.RateLimit,
		projects:  deps.Projects,
		store:     deps.Store,
		observer:  deps.Observer,
		validate:  newValidator(),
		logger:    logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("github_login", func(fl validator.FieldLevel) bool {
		return loginPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("github_repo", func(fl validator.FieldLevel) bool {
		return repoPattern.MatchString(fl.Field().String())
	})
	return v
}

// Repositories serves GET /api/repositories.
func (a *API) Repositories(w http.ResponseWriter, r *http.Request) {
	rows, report, err := a.service.FetchRepositories(r.Context())
	a.reply(w, r, "repositories", rows, report, err)
}

// RepositoryCommits serves GET /api/repositories/{owner}/{repo}/commits.
func (a *API) RepositoryCommits(w http.ResponseWriter, r *http.Request) {
	params := repositoryParams{
		Owner:     chi.URLParam(r, "owner"),
		Repo:      chi.URLParam(r, "repo"),
		TimeFrame: timeFrameParam(r),
	}
	if err := a.bind(params); err != nil {
		a.fail(w, r, "repository_commits", err)
		return
	}
	tf, err := contrib.ParseTimeFrame(params.TimeFrame)
	if err != nil {
		a.fail(w, r, "repository_commits", err)
		return
	}
	authors, report, err := a.service.FetchRepositoryCommitHistory(r.Context(), params.Owner, params.Repo, tf)
	a.reply(w, r, "repository_commits", authors, report, err)
}

// Leaderboard serves GET /api/leaderboard?timeframe=all|month|week.
func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	tf, err := a.timeFrame(r)
	if err != nil {
		a.fail(w, r, "leaderboard", err)
		return
	}
	operation := cache.LeaderboardKey(string(tf))
	rows, report, err := a.service.FetchLeaderboard(r.Context(), tf)
	if err == nil {
		a.observeCache(operation, report)
	}
	a.reply(w, r, operation, rows, report, err)
}

// DirectCommits serves GET /api/direct-commits?timeframe=.
func (a *API) DirectCommits(w http.ResponseWriter, r *http.Request) {
	tf, err := a.timeFrame(r)
	if err != nil {
		a.fail(w, r, "direct_commits", err)
		return
	}
	scan, report, err := a.service.FetchAdminDirectCommits(r.Context(), tf)
	a.reply(w, r, "direct_commits", scan, report, err)
}

// Members serves GET /api/members.
func (a *API) Members(w http.ResponseWriter, r *http.Request) {
	rows, report, err := a.service.FetchOrganizationMembers(r.Context())
	if err == nil {
		a.observeCache("members", report)
	}
	a.reply(w, r, "members", rows, report, err)
}

// UserCommits serves GET /api/users/{username}/commits?timeframe=.
func (a *API) UserCommits(w http.ResponseWriter, r *http.Request) {
	params := userParams{
		Username:  chi.URLParam(r, "username"),
		TimeFrame: timeFrameParam(r),
	}
	if err := a.bind(params); err != nil {
		a.fail(w, r, "user_commits", err)
		return
	}
	tf, err := contrib.ParseTimeFrame(params.TimeFrame)
	if err != nil {
		a.fail(w, r, "user_commits", err)
		return
	}
	rows, report, err := a.service.FetchUserCommits(r.Context(), params.Username, tf)
	a.reply(w, r, "user_commits", rows, report, err)
}

// UserContributions serves GET /api/users/{username}/contributions.
func (a *API) UserContributions(w http.ResponseWriter, r *http.Request) {
	params := userParams{Username: chi.URLParam(r, "username")}
	if err := a.bind(params); err != nil {
		a.fail(w, r, "user_contributions", err)
		return
	}
	rows, report, err := a.service.FetchUserContributions(r.Context(), params.Username)
	a.reply(w, r, "user_contributions", rows, report, err)
}

// Projects serves GET /api/projects.
func (a *API) Projects(w http.ResponseWriter, r *http.Request) {
	if a.projects == nil {
		a.fail(w, r, "projects", perr.NotFoundf("project persistence is not configured"))
		return
	}
	rows, err := a.projects.List(r.Context())
	a.reply(w, r, "projects", rows, contrib.Report{}, err)
}

// RateLimit serves GET /api/rate-limit.
func (a *API) RateLimit(w http.ResponseWriter, r *http.Request) {
	if a.rateLimit == nil {
		a.fail(w, r, "rate_limit", perr.NotFoundf("github client is not configured"))
		return
	}
	limit, err := a.rateLimit.RateLimit(r.Context())
	if err != nil {
		err = mapProviderError("read rate limit", err)
	}
	a.reply(w, r, "rate_limit", limit, contrib.Report{}, err)
}

// ClearCache serves DELETE /api/cache.
func (a *API) ClearCache(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.fail(w, r, "cache_clear", perr.NotFoundf("cache is not configured"))
		return
	}
	if err := a.store.Clear(r.Context()); err != nil {
		a.fail(w, r, "cache_clear", perr.Wrap(err, perr.ErrorCodeUnknown, "clear cache"))
		return
	}
	a.logger.Info("cache cleared", zap.String("request_id", chimw.GetReqID(r.Context())))
	a.write(w, r, http.StatusOK, map[string]bool{"cleared": true})
}

func (a *API) timeFrame(r *http.Request) (contrib.TimeFrame, error) {
	query := timeFrameQuery{TimeFrame: timeFrameParam(r)}
	if err := a.bind(query); err != nil {
		return "", err
	}
	return contrib.ParseTimeFrame(query.TimeFrame)
}

func timeFrameParam(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.URL.Query().Get("timeframe")))
}

func (a *API) bind(payload any) error {
	err := a.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "validate request")
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, invalidFieldMessage(fe))
	}
	return perr.InvalidArgf("%s", strings.Join(msgs, "; "))
}

func invalidFieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of all, month or week"
	default:
		return fe.Field() + " is invalid"
	}
}

func (a *API) observeCache(operation string, report contrib.Report) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveCacheLookup(operation, report.Cached)
}

func (a *API) reply(w http.ResponseWriter, r *http.Request, operation string, data any, report contrib.Report, err error) {
	if err != nil {
		a.fail(w, r, operation, err)
		return
	}
	if report.Cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	if total := report.Total(); total > 0 {
		a.logger.Debug(
			"served partial result",
			zap.String("operation", operation),
			zap.Int("skipped", total),
		)
	}
	a.write(w, r, http.StatusOK, data)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, wire := perr.HTTP(err)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("code", wire.Code),
		zap.Int("status_code", status),
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("api request failed", fields...)
	} else {
		a.logger.Warn("api request rejected", fields...)
	}
	a.writeEnvelope(w, status, Envelope{
		StatusCode: status,
		Status:     http.StatusText(status),
		Code:       wire.Code,
		Error:      wire.Message,
		RequestID:  chimw.GetReqID(r.Context()),
	})
}

func (a *API) write(w http.ResponseWriter, r *http.Request, status int, data any) {
	a.writeEnvelope(w, status, Envelope{
		StatusCode: status,
		Status:     http.StatusText(status),
		RequestID:  chimw.GetReqID(r.Context()),
		Data:       data,
	})
}

func (a *API) writeEnvelope(w http.ResponseWriter, status int, body Envelope) {
	payload, err := json.Marshal(body)
	if err != nil {
		a.logger.Error("marshal api response", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if _, writeErr := w.Write([]byte(`{"status_code":500,"status":"Internal Server Error","code":"unknown","error":"marshal response"}`)); writeErr != nil {
			return
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		return
	}
}

// mapProviderError gives provider failures outside the aggregators the same
// codes the aggregators use.
func mapProviderError(op string, err error) error {
	if _, ok := perr.As(err); ok {
		return err
	}
	switch githubapi.StatusOf(err) {
	case githubapi.EndpointStatusUnauthorized:
		return perr.WithOp(perr.Wrap(err, perr.ErrorCodeAuthentication, "github rejected the configured credential"), op)
	case githubapi.EndpointStatusForbidden, githubapi.EndpointStatusRateLimited:
		return perr.WithOp(perr.Wrap(err, perr.ErrorCodePermissionOrRateLimit, "github denied access or the rate limit is exhausted"), op)
	default:
		return perr.WithOp(perr.Wrap(err, perr.ErrorCodeUnknown, "github request failed"), op)
	}
}
