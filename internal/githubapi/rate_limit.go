package githubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResourceSearch is the X-RateLimit-Resource value of the search API bucket,
// which is far smaller than the core bucket.
const ResourceSearch = "search"

// DecisionReason explains a rate-limit decision.
type DecisionReason string

const (
	ReasonUntracked       DecisionReason = "untracked"
	ReasonWithinBudget    DecisionReason = "within_budget"
	ReasonResetElapsed    DecisionReason = "reset_elapsed"
	ReasonBelowThreshold  DecisionReason = "remaining_below_threshold"
	ReasonSecondaryLimit  DecisionReason = "secondary_limit"
	ReasonPrimaryExceeded DecisionReason = "primary_limit_exceeded"
)

// RateLimitHeaders is the budget GitHub reported on one response.
type RateLimitHeaders struct {
	// Tracked is false when the response carried no X-RateLimit-Remaining.
	Tracked          bool
	Resource         string
	Limit            int
	Remaining        int
	Used             int
	ResetUnix        int64
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// ResetAt returns the reset instant, or the zero time when unknown.
func (h RateLimitHeaders) ResetAt() time.Time {
	if h.ResetUnix <= 0 {
		return time.Time{}
	}
	return time.Unix(h.ResetUnix, 0).UTC()
}

// Budget converts the headers into a RateLimit.
func (h RateLimitHeaders) Budget() RateLimit {
	return RateLimit{Limit: h.Limit, Remaining: h.Remaining, ResetAt: h.ResetAt()}
}

// Decision is the pacing verdict for the next request.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  DecisionReason
}

// RateLimitPolicy decides when aggregation runs must pause for GitHub's
// budget to recover.
type RateLimitPolicy struct {
	// MinRemainingThreshold is the reserve kept in the core bucket. Buckets
	// whose whole limit is at or below it keep a tenth of their limit instead.
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	// MaxWait caps any computed wait. Zero means uncapped.
	MaxWait time.Duration
	Now     func() time.Time
}

// ParseRateLimitHeaders reads the rate-limit headers of a response.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{
		Resource:  strings.ToLower(strings.TrimSpace(header.Get("X-RateLimit-Resource"))),
		Limit:     parseInt(header.Get("X-RateLimit-Limit")),
		Used:      parseInt(header.Get("X-RateLimit-Used")),
		ResetUnix: parseInt64(header.Get("X-RateLimit-Reset")),
	}
	if raw := header.Get("X-RateLimit-Remaining"); raw != "" {
		if remaining, err := strconv.Atoi(raw); err == nil {
			parsed.Tracked = true
			parsed.Remaining = remaining
		}
	}
	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		parsed.SecondaryLimited = true
	case http.StatusForbidden:
		parsed.SecondaryLimited = parsed.RetryAfter > 0
	}
	return parsed
}

// Evaluate decides whether the next call may go out now.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		return Decision{
			WaitFor: p.capWait(max(p.SecondaryLimitBackoff, headers.RetryAfter)),
			Reason:  ReasonSecondaryLimit,
		}
	}
	if !headers.Tracked {
		return Decision{Allow: true, Reason: ReasonUntracked}
	}
	if headers.Remaining >= p.threshold(headers) && headers.Remaining > 0 {
		return Decision{Allow: true, Reason: ReasonWithinBudget}
	}

	resetAt := headers.ResetAt()
	if resetAt.IsZero() || !resetAt.After(now) {
		return Decision{Allow: true, Reason: ReasonResetElapsed}
	}

	reason := ReasonBelowThreshold
	if headers.Remaining == 0 {
		reason = ReasonPrimaryExceeded
	}
	return Decision{
		WaitFor: p.capWait(resetAt.Sub(now) + p.MinResetBuffer),
		Reason:  reason,
	}
}

func (p RateLimitPolicy) threshold(headers RateLimitHeaders) int {
	threshold := p.MinRemainingThreshold
	if headers.Limit > 0 && threshold >= headers.Limit {
		threshold = headers.Limit / 10
	}
	return threshold
}

func (p RateLimitPolicy) capWait(waitFor time.Duration) time.Duration {
	if p.MaxWait > 0 && waitFor > p.MaxWait {
		return p.MaxWait
	}
	return waitFor
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
