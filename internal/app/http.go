package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "devcoins/internal/app"

// RouterConfig configures the outer HTTP surface.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// TraceMode disables request spans when empty or "off".
	TraceMode string
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// NewHTTPHandler wires the JSON API, metrics and health endpoints on a single router.
func NewHTTPHandler(api *API, metricsHandler http.Handler, healthHandler http.Handler, cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RealIP, chimw.RequestID, chimw.Recoverer, traceRequests(cfg))

	for _, path := range []string{"/livez", "/readyz", "/healthz"} {
		router.Handle(path, orNotFound(healthHandler))
	}
	router.Handle("/metrics", orNotFound(metricsHandler))

	if api == nil {
		return router
	}
	router.Route("/api", func(r chi.Router) {
		r.Use(corsHandler(cfg.CORSAllowedOrigins))
		r.Get("/repositories", api.Repositories)
		r.Get("/repositories/{owner}/{repo}/commits", api.RepositoryCommits)
		r.Get("/leaderboard", api.Leaderboard)
		r.Get("/direct-commits", api.DirectCommits)
		r.Get("/members", api.Members)
		r.Get("/users/{username}/commits", api.UserCommits)
		r.Get("/users/{username}/contributions", api.UserContributions)
		r.Get("/projects", api.Projects)
		r.Get("/rate-limit", api.RateLimit)
		r.Delete("/cache", api.ClearCache)
	})
	return router
}

func orNotFound(handler http.Handler) http.Handler {
	if handler == nil {
		return http.NotFoundHandler()
	}
	return handler
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Cache", "X-Request-ID"},
		MaxAge:         300,
	})
}

// traceRequests wraps each request in a server span. The span is renamed
// after the matched route pattern once routing has finished, so
// /api/users/alice/commits and /api/users/bob/commits share one name.
func traceRequests(cfg RouterConfig) func(http.Handler) http.Handler {
	mode := strings.ToLower(strings.TrimSpace(cfg.TraceMode))
	if mode == "" || mode == "off" {
		return func(next http.Handler) http.Handler { return next }
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(
				r.Context(),
				"http.server",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
				attribute.String("devcoins.request_id", chimw.GetReqID(ctx)),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
				return
			}
			span.SetStatus(codes.Ok, "")
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
