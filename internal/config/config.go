package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/devcoins/internal/telemetry"
	"gopkg.in/yaml.v3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validCacheBackends = []string{"memory", "redis"}
)

// DefaultOrg is used when neither the file nor the environment names an organization.
const DefaultOrg = "NST-SDC"

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig
	GitHub      GitHubConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	Pacing      PacingConfig
	Aggregation AggregationConfig
	Cache       CacheConfig
	Refresh     RefreshConfig
	Projects    ProjectsConfig
	Telemetry   TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr         string
	LogLevel           string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL                string
	Org                       string
	Token                     string
	AppID                     int64
	InstallationID            int64
	PrivateKeyPath            string
	RequestTimeout            time.Duration
	UnhealthyFailureThreshold int
	UnhealthyCooldown         time.Duration
}

// HasCredentials reports whether a token or app installation is configured.
func (g GitHubConfig) HasCredentials() bool {
	return strings.TrimSpace(g.Token) != "" || g.UsesApp()
}

// UsesApp reports whether GitHub App installation auth is configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID > 0
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	MaxWait               time.Duration
	RetryRateLimited      bool
	MaxRequestsPerSecond  float64
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PacingConfig configures pauses inserted into long pagination and detail loops.
type PacingConfig struct {
	PagePauseEvery   int
	PagePause        time.Duration
	DetailPauseEvery int
	DetailPause      time.Duration
}

// AggregationConfig bounds how much data each build pulls.
type AggregationConfig struct {
	RecentPullRequests          int
	LeaderboardPullRequestPages int
	CommitSampleSize            int
	UserCommitDetailLimit       int
	UserCommitsPerRepo          int
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Backend        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	Namespace      string
	LeaderboardTTL time.Duration
	MembersTTL     time.Duration
}

// RefreshConfig configures background cache warm-up.
type RefreshConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// ProjectsConfig configures project row persistence.
type ProjectsConfig struct {
	DatabaseURL string
}

// Enabled reports whether project persistence is configured.
func (p ProjectsConfig) Enabled() bool {
	return strings.TrimSpace(p.DatabaseURL) != ""
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// LookupFunc resolves environment variables.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from YAML, applies environment overrides and
// validates the result.
func Load(reader io.Reader) (*Config, error) {
	return LoadWithLookup(reader, os.LookupEnv)
}

// LoadWithLookup is Load with an explicit environment lookup.
func LoadWithLookup(reader io.Reader, lookup LookupFunc) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyEnv(cfg, lookup)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values. A missing GitHub credential is
// not a load error; operations that need one report it when called.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if strings.TrimSpace(c.GitHub.Org) == "" {
		errs = append(errs, "github.org is required")
	}
	if c.GitHub.AppID > 0 || c.GitHub.InstallationID > 0 || c.GitHub.PrivateKeyPath != "" {
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0 when app auth is configured")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0 when app auth is configured")
		}
		if c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github.private_key_path is required when app auth is configured")
		}
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}
	if c.RateLimit.MaxRequestsPerSecond < 0 {
		errs = append(errs, "rate_limit.max_requests_per_second must be >= 0")
	}
	if c.Pacing.PagePauseEvery < 0 || c.Pacing.DetailPauseEvery < 0 {
		errs = append(errs, "pacing pause intervals must be >= 0")
	}
	if c.Aggregation.RecentPullRequests <= 0 || c.Aggregation.RecentPullRequests > 100 {
		errs = append(errs, "aggregation.recent_pull_requests must be within 1..100")
	}
	if c.Aggregation.LeaderboardPullRequestPages < 0 || c.Aggregation.CommitSampleSize < 0 || c.Aggregation.UserCommitDetailLimit < 0 {
		errs = append(errs, "aggregation limits must be >= 0")
	}

	if !slices.Contains(validCacheBackends, c.Cache.Backend) {
		errs = append(errs, "cache.backend must be memory or redis")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redis_addr is required when cache.backend=redis")
	}
	if c.Cache.LeaderboardTTL <= 0 || c.Cache.MembersTTL <= 0 {
		errs = append(errs, "cache ttl values must be > 0")
	}

	if c.Refresh.Interval < 0 {
		errs = append(errs, "refresh.interval must be >= 0")
	}

	if _, ok := telemetry.ParseMode(c.Telemetry.OTELTraceMode); !ok {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be within 0..1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) {
	if lookup == nil {
		return
	}
	if token, ok := lookup("GITHUB_TOKEN"); ok && strings.TrimSpace(token) != "" {
		cfg.GitHub.Token = strings.TrimSpace(token)
	}
	if org, ok := lookup("GITHUB_ORG"); ok && strings.TrimSpace(org) != "" {
		cfg.GitHub.Org = strings.TrimSpace(org)
	}
	if databaseURL, ok := lookup("DATABASE_URL"); ok && cfg.Projects.DatabaseURL == "" {
		cfg.Projects.DatabaseURL = strings.TrimSpace(databaseURL)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.GitHub.Org == "" {
		cfg.GitHub.Org = DefaultOrg
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.UnhealthyFailureThreshold == 0 {
		cfg.GitHub.UnhealthyFailureThreshold = 3
	}
	if cfg.GitHub.UnhealthyCooldown == 0 {
		cfg.GitHub.UnhealthyCooldown = 5 * time.Minute
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.RateLimit.MaxWait == 0 {
		cfg.RateLimit.MaxWait = 2 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Pacing.PagePauseEvery == 0 {
		cfg.Pacing.PagePauseEvery = 3
	}
	if cfg.Pacing.PagePause == 0 {
		cfg.Pacing.PagePause = time.Second
	}
	if cfg.Pacing.DetailPauseEvery == 0 {
		cfg.Pacing.DetailPauseEvery = 10
	}
	if cfg.Pacing.DetailPause == 0 {
		cfg.Pacing.DetailPause = time.Second
	}
	if cfg.Aggregation.RecentPullRequests == 0 {
		cfg.Aggregation.RecentPullRequests = 30
	}
	if cfg.Aggregation.LeaderboardPullRequestPages == 0 {
		cfg.Aggregation.LeaderboardPullRequestPages = 1
	}
	if cfg.Aggregation.CommitSampleSize == 0 {
		cfg.Aggregation.CommitSampleSize = 5
	}
	if cfg.Aggregation.UserCommitDetailLimit == 0 {
		cfg.Aggregation.UserCommitDetailLimit = 20
	}
	if cfg.Aggregation.UserCommitsPerRepo == 0 {
		cfg.Aggregation.UserCommitsPerRepo = 100
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = "devcoins"
	}
	if cfg.Cache.LeaderboardTTL == 0 {
		cfg.Cache.LeaderboardTTL = 2 * time.Hour
	}
	if cfg.Cache.MembersTTL == 0 {
		cfg.Cache.MembersTTL = 5 * time.Hour
	}
	if cfg.Refresh.Timeout == 0 {
		cfg.Refresh.Timeout = 30 * time.Minute
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server      rawServer      `yaml:"server"`
	GitHub      rawGitHub      `yaml:"github"`
	RateLimit   rawRateLimit   `yaml:"rate_limit"`
	Retry       rawRetry       `yaml:"retry"`
	Pacing      rawPacing      `yaml:"pacing"`
	Aggregation rawAggregation `yaml:"aggregation"`
	Cache       rawCache       `yaml:"cache"`
	Refresh     rawRefresh     `yaml:"refresh"`
	Projects    rawProjects    `yaml:"projects"`
	Telemetry   rawTelemetry   `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr         string   `yaml:"listen_addr"`
	LogLevel           string   `yaml:"log_level"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	ShutdownTimeout    duration `yaml:"shutdown_timeout"`
}

type rawGitHub struct {
	APIBaseURL                string   `yaml:"api_base_url"`
	Org                       string   `yaml:"org"`
	Token                     string   `yaml:"token"`
	AppID                     int64    `yaml:"app_id"`
	InstallationID            int64    `yaml:"installation_id"`
	PrivateKeyPath            string   `yaml:"private_key_path"`
	RequestTimeout            duration `yaml:"request_timeout"`
	UnhealthyFailureThreshold int      `yaml:"unhealthy_failure_threshold"`
	UnhealthyCooldown         duration `yaml:"unhealthy_cooldown"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
	MaxWait               duration `yaml:"max_wait"`
	RetryRateLimited      bool     `yaml:"retry_rate_limited"`
	MaxRequestsPerSecond  float64  `yaml:"max_requests_per_second"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawPacing struct {
	PagePauseEvery   int      `yaml:"page_pause_every"`
	PagePause        duration `yaml:"page_pause"`
	DetailPauseEvery int      `yaml:"detail_pause_every"`
	DetailPause      duration `yaml:"detail_pause"`
}

type rawAggregation struct {
	RecentPullRequests          int `yaml:"recent_pull_requests"`
	LeaderboardPullRequestPages int `yaml:"leaderboard_pull_request_pages"`
	CommitSampleSize            int `yaml:"commit_sample_size"`
	UserCommitDetailLimit       int `yaml:"user_commit_detail_limit"`
	UserCommitsPerRepo          int `yaml:"user_commits_per_repo"`
}

type rawCache struct {
	Backend        string   `yaml:"backend"`
	RedisAddr      string   `yaml:"redis_addr"`
	RedisPassword  string   `yaml:"redis_password"`
	RedisDB        int      `yaml:"redis_db"`
	Namespace      string   `yaml:"namespace"`
	LeaderboardTTL duration `yaml:"leaderboard_ttl"`
	MembersTTL     duration `yaml:"members_ttl"`
}

type rawRefresh struct {
	Interval duration `yaml:"interval"`
	Timeout  duration `yaml:"timeout"`
}

type rawProjects struct {
	DatabaseURL string `yaml:"database_url"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:         r.Server.ListenAddr,
			LogLevel:           r.Server.LogLevel,
			CORSAllowedOrigins: r.Server.CORSAllowedOrigins,
			ShutdownTimeout:    r.Server.ShutdownTimeout.Duration,
		},
		GitHub: GitHubConfig{
			APIBaseURL:                r.GitHub.APIBaseURL,
			Org:                       strings.TrimSpace(r.GitHub.Org),
			Token:                     strings.TrimSpace(r.GitHub.Token),
			AppID:                     r.GitHub.AppID,
			InstallationID:            r.GitHub.InstallationID,
			PrivateKeyPath:            r.GitHub.PrivateKeyPath,
			RequestTimeout:            r.GitHub.RequestTimeout.Duration,
			UnhealthyFailureThreshold: r.GitHub.UnhealthyFailureThreshold,
			UnhealthyCooldown:         r.GitHub.UnhealthyCooldown.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
			MaxWait:               r.RateLimit.MaxWait.Duration,
			RetryRateLimited:      r.RateLimit.RetryRateLimited,
			MaxRequestsPerSecond:  r.RateLimit.MaxRequestsPerSecond,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Pacing: PacingConfig{
			PagePauseEvery:   r.Pacing.PagePauseEvery,
			PagePause:        r.Pacing.PagePause.Duration,
			DetailPauseEvery: r.Pacing.DetailPauseEvery,
			DetailPause:      r.Pacing.DetailPause.Duration,
		},
		Aggregation: AggregationConfig(r.Aggregation),
		Cache: CacheConfig{
			Backend:        r.Cache.Backend,
			RedisAddr:      r.Cache.RedisAddr,
			RedisPassword:  r.Cache.RedisPassword,
			RedisDB:        r.Cache.RedisDB,
			Namespace:      r.Cache.Namespace,
			LeaderboardTTL: r.Cache.LeaderboardTTL.Duration,
			MembersTTL:     r.Cache.MembersTTL.Duration,
		},
		Refresh: RefreshConfig{
			Interval: r.Refresh.Interval.Duration,
			Timeout:  r.Refresh.Timeout.Duration,
		},
		Projects: ProjectsConfig(r.Projects),
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
