package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates cached aggregates are served but may be stale.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy.
	ModeUnhealthy Mode = "unhealthy"
)

// Component names reported in Status.Components.
const (
	ComponentCache         = "cache"
	ComponentGitHubClient  = "github_client"
	ComponentGitHubHealthy = "github_healthy"
	ComponentRefresher     = "refresher"
	ComponentProjects      = "projects"
)

// Reasons reported when a component is not healthy.
const (
	ReasonCacheUnavailable    = "cache unavailable"
	ReasonProjectsUnavailable = "projects database unavailable"
	ReasonNoGitHubClient      = "github client unavailable"
	ReasonGitHubCooldown      = "github failing; refresh paused"
	ReasonRefresherFailing    = "cache refresh failing"
)

// Input is the dependency state the runtime reports.
type Input struct {
	CacheHealthy       bool
	GitHubClientUsable bool
	GitHubHealthy      bool
	RefresherEnabled   bool
	RefresherHealthy   bool
	ProjectsEnabled    bool
	ProjectsHealthy    bool

	LastRefresh         time.Time
	GitHubCooldownUntil time.Time
}

// Status is the evaluated application health.
type Status struct {
	Mode                Mode            `json:"mode"`
	Ready               bool            `json:"ready"`
	Components          map[string]bool `json:"components"`
	Reasons             []string        `json:"reasons,omitempty"`
	LastRefresh         *time.Time      `json:"last_refresh,omitempty"`
	GitHubCooldownUntil *time.Time      `json:"github_cooldown_until,omitempty"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state.
//
// The cache and, when configured, the projects database gate readiness.
// GitHub and refresher problems only degrade: cached aggregates can still
// be served.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	status := Status{
		Mode:  ModeHealthy,
		Ready: true,
		Components: map[string]bool{
			ComponentCache:         input.CacheHealthy,
			ComponentGitHubClient:  input.GitHubClientUsable,
			ComponentGitHubHealthy: input.GitHubHealthy,
		},
		LastRefresh:         timePtr(input.LastRefresh),
		GitHubCooldownUntil: timePtr(input.GitHubCooldownUntil),
	}

	if !input.CacheHealthy {
		status.fail(ReasonCacheUnavailable)
	}
	if input.ProjectsEnabled {
		status.Components[ComponentProjects] = input.ProjectsHealthy
		if !input.ProjectsHealthy {
			status.fail(ReasonProjectsUnavailable)
		}
	}
	if !input.GitHubClientUsable {
		status.degrade(ReasonNoGitHubClient)
	}
	if !input.GitHubHealthy {
		status.degrade(ReasonGitHubCooldown)
	}
	if input.RefresherEnabled {
		status.Components[ComponentRefresher] = input.RefresherHealthy
		if !input.RefresherHealthy {
			status.degrade(ReasonRefresherFailing)
		}
	}
	return status
}

func (s *Status) fail(reason string) {
	s.Ready = false
	s.Mode = ModeUnhealthy
	s.Reasons = append(s.Reasons, reason)
}

func (s *Status) degrade(reason string) {
	if s.Mode == ModeHealthy {
		s.Mode = ModeDegraded
	}
	s.Reasons = append(s.Reasons, reason)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			writeText(w, http.StatusOK, "ready")
			return
		}
		body := "not ready"
		if len(status.Reasons) > 0 {
			body += ": " + strings.Join(status.Reasons, ", ")
		}
		writeText(w, http.StatusServiceUnavailable, body)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(provider.CurrentStatus(r.Context()))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		_, _ = w.Write(payload)
	})

	return mux
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
