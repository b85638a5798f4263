package githubapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/devcoins/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures GitHub client retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetryRateLimited waits and re-issues requests rejected by a rate limit.
	// When false the rejection is returned to the caller as-is.
	RetryRateLimited bool
}

const tracerName = "devcoins/internal/githubapi"

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy

	mu         sync.Mutex
	holdUntil  time.Time
	lastResult CallMetadata

	// Sleep is injected for testability.
	Sleep func(ctx context.Context, duration time.Duration) error
	// Now is injected for testability.
	Now func() time.Time
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      sleepContext,
		Now:        time.Now,
	}
}

// LastCall returns metadata from the most recently completed call.
func (c *Client) LastCall() CallMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Do executes a request with retry and rate-limit awareness.
//
// A successful response that leaves the budget below threshold is returned
// immediately; the pause is applied before the next request instead.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx, span := c.startCallSpan(req)
	metadata := CallMetadata{}
	defer func() { c.record(metadata) }()

	for attempt := 1; ; attempt++ {
		metadata.Attempts = attempt
		if err := c.awaitHold(ctx); err != nil {
			span.end(callStep{err: err})
			return nil, metadata, err
		}

		step := c.attempt(ctx, req, attempt, &metadata, span)
		if !step.retry {
			span.end(step)
			return step.resp, metadata, step.err
		}
		if err := c.Sleep(ctx, step.wait); err != nil {
			span.end(callStep{err: err})
			return nil, metadata, err
		}
	}
}

// callStep is the verdict on one attempt: return resp/err, or retry after wait.
type callStep struct {
	resp    *http.Response
	err     error
	retry   bool
	wait    time.Duration
	failure string
}

func (c *Client) attempt(ctx context.Context, req *http.Request, attempt int, metadata *CallMetadata, span *callSpan) callStep {
	final := attempt >= c.retry.MaxAttempts

	next, err := cloneRequest(ctx, req)
	if err != nil {
		return callStep{err: err}
	}
	resp, err := c.doer.Do(next)
	if err != nil {
		span.attemptFailed(attempt, err)
		if final || ctx.Err() != nil {
			return callStep{err: err}
		}
		return callStep{retry: true, wait: backoffForAttempt(c.retry, attempt)}
	}

	headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
	decision := c.ratePolicy.Evaluate(headers)
	metadata.LastRateHeaders = headers
	metadata.LastDecision = decision
	span.attemptCompleted(attempt, resp.StatusCode, headers, decision)

	switch {
	case !decision.Allow && resp.StatusCode < http.StatusBadRequest:
		c.hold(decision.WaitFor)
		return callStep{resp: resp}
	case !decision.Allow:
		if !c.retry.RetryRateLimited || final || decision.WaitFor <= 0 {
			return callStep{resp: resp, failure: "rate-limited"}
		}
		drainAndClose(resp)
		return callStep{retry: true, wait: decision.WaitFor}
	case isTransientStatus(resp.StatusCode):
		if final {
			return callStep{resp: resp, failure: fmt.Sprintf("transient status %d", resp.StatusCode)}
		}
		drainAndClose(resp)
		return callStep{retry: true, wait: backoffForAttempt(c.retry, attempt)}
	default:
		return callStep{resp: resp}
	}
}

// callSpan records one Do call when dependency tracing is on. A nil
// *callSpan ignores every method.
type callSpan struct {
	span trace.Span
}

func (c *Client) startCallSpan(req *http.Request) (context.Context, *callSpan) {
	ctx := req.Context()
	if !telemetry.ShouldTraceDependencies() {
		return ctx, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(
		ctx,
		"githubapi.client.do",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.EscapedPath()),
			attribute.Int("github.max_attempts", c.retry.MaxAttempts),
		),
	)
	return ctx, &callSpan{span: span}
}

func (s *callSpan) attemptFailed(attempt int, err error) {
	if s == nil {
		return
	}
	s.span.RecordError(err)
	s.span.AddEvent("attempt_failed", trace.WithAttributes(attribute.Int("github.attempt", attempt)))
}

func (s *callSpan) attemptCompleted(attempt, statusCode int, headers RateLimitHeaders, decision Decision) {
	if s == nil {
		return
	}
	s.span.AddEvent("attempt_completed", trace.WithAttributes(
		attribute.Int("github.attempt", attempt),
		attribute.Int("http.status_code", statusCode),
		attribute.String("github.rate_limit_resource", headers.Resource),
		attribute.Int("github.rate_limit_remaining", headers.Remaining),
		attribute.Int64("github.rate_limit_reset_unix", headers.ResetUnix),
		attribute.Bool("github.rate_limit_allow", decision.Allow),
		attribute.String("github.rate_limit_reason", string(decision.Reason)),
	))
}

func (s *callSpan) end(step callStep) {
	if s == nil {
		return
	}
	switch {
	case step.err != nil:
		s.span.SetStatus(codes.Error, step.err.Error())
	case step.failure != "":
		s.span.SetStatus(codes.Error, step.failure)
	default:
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

func (c *Client) hold(waitFor time.Duration) {
	if waitFor <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.Now().Add(waitFor)
	if until.After(c.holdUntil) {
		c.holdUntil = until
	}
}

func (c *Client) awaitHold(ctx context.Context) error {
	c.mu.Lock()
	waitFor := c.holdUntil.Sub(c.Now())
	c.mu.Unlock()
	if waitFor <= 0 {
		return nil
	}
	return c.Sleep(ctx, waitFor)
}

func (c *Client) record(metadata CallMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastResult = metadata
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	next := req.Clone(ctx)
	if req.Body == nil || req.GetBody == nil {
		return next, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	next.Body = body
	return next, nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
