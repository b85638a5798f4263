package githubapi

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		headers    map[string]string
		want       RateLimitHeaders
	}{
		{
			name:       "core_bucket",
			statusCode: http.StatusOK,
			headers: map[string]string{
				"X-RateLimit-Limit":     "5000",
				"X-RateLimit-Remaining": "4999",
				"X-RateLimit-Reset":     "1739837000",
				"X-RateLimit-Used":      "1",
				"X-RateLimit-Resource":  "core",
			},
			want: RateLimitHeaders{
				Tracked:   true,
				Resource:  "core",
				Limit:     5000,
				Remaining: 4999,
				Used:      1,
				ResetUnix: 1739837000,
			},
		},
		{
			name:       "search_bucket_exhausted",
			statusCode: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "30",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Resource":  "Search",
			},
			want: RateLimitHeaders{
				Tracked:  true,
				Resource: ResourceSearch,
				Limit:    30,
			},
		},
		{
			name:       "secondary_limit_from_retry_after",
			statusCode: http.StatusForbidden,
			headers:    map[string]string{"Retry-After": "60"},
			want: RateLimitHeaders{
				RetryAfter:       60 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "invalid_values_are_untracked",
			statusCode: http.StatusTooManyRequests,
			headers: map[string]string{
				"X-RateLimit-Remaining": "abc",
				"X-RateLimit-Reset":     "xyz",
				"Retry-After":           "nan",
			},
			want: RateLimitHeaders{SecondaryLimited: true},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}

			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitHeadersBudget(t *testing.T) {
	t.Parallel()

	headers := RateLimitHeaders{Tracked: true, Limit: 5000, Remaining: 12, ResetUnix: 1772366400}
	got := headers.Budget()
	want := RateLimit{Limit: 5000, Remaining: 12, ResetAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if got != want {
		t.Fatalf("Budget() = %+v, want %+v", got, want)
	}
	if !(RateLimitHeaders{}).ResetAt().IsZero() {
		t.Fatalf("ResetAt() without reset header should be zero")
	}
}

func TestRateLimitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	inTwoMinutes := now.Add(2 * time.Minute).Unix()
	policy := RateLimitPolicy{
		MinRemainingThreshold: 200,
		MinResetBuffer:        10 * time.Second,
		SecondaryLimitBackoff: 60 * time.Second,
		Now:                   func() time.Time { return now },
	}

	testCases := []struct {
		name string
		in   RateLimitHeaders
		want Decision
	}{
		{
			name: "untracked_response",
			in:   RateLimitHeaders{},
			want: Decision{Allow: true, Reason: ReasonUntracked},
		},
		{
			name: "core_budget_available",
			in:   RateLimitHeaders{Tracked: true, Limit: 5000, Remaining: 500, ResetUnix: inTwoMinutes},
			want: Decision{Allow: true, Reason: ReasonWithinBudget},
		},
		{
			name: "core_budget_below_reserve",
			in:   RateLimitHeaders{Tracked: true, Limit: 5000, Remaining: 100, ResetUnix: inTwoMinutes},
			want: Decision{WaitFor: 130 * time.Second, Reason: ReasonBelowThreshold},
		},
		{
			name: "core_budget_exhausted",
			in:   RateLimitHeaders{Tracked: true, Limit: 5000, Remaining: 0, ResetUnix: inTwoMinutes},
			want: Decision{WaitFor: 130 * time.Second, Reason: ReasonPrimaryExceeded},
		},
		{
			name: "search_bucket_reserve_scales_to_limit",
			in:   RateLimitHeaders{Tracked: true, Resource: ResourceSearch, Limit: 30, Remaining: 3, ResetUnix: inTwoMinutes},
			want: Decision{Allow: true, Reason: ReasonWithinBudget},
		},
		{
			name: "search_bucket_below_scaled_reserve",
			in:   RateLimitHeaders{Tracked: true, Resource: ResourceSearch, Limit: 30, Remaining: 2, ResetUnix: inTwoMinutes},
			want: Decision{WaitFor: 130 * time.Second, Reason: ReasonBelowThreshold},
		},
		{
			name: "secondary_limit_prefers_longer_retry_after",
			in:   RateLimitHeaders{SecondaryLimited: true, RetryAfter: 90 * time.Second},
			want: Decision{WaitFor: 90 * time.Second, Reason: ReasonSecondaryLimit},
		},
		{
			name: "secondary_limit_falls_back_to_policy_backoff",
			in:   RateLimitHeaders{SecondaryLimited: true},
			want: Decision{WaitFor: 60 * time.Second, Reason: ReasonSecondaryLimit},
		},
		{
			name: "reset_already_elapsed",
			in:   RateLimitHeaders{Tracked: true, Limit: 5000, Remaining: 100, ResetUnix: now.Add(-time.Minute).Unix()},
			want: Decision{Allow: true, Reason: ReasonResetElapsed},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := policy.Evaluate(tc.in)
			if got != tc.want {
				t.Fatalf("Evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitPolicyMaxWait(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	policy := RateLimitPolicy{
		MinRemainingThreshold: 50,
		SecondaryLimitBackoff: 5 * time.Minute,
		MaxWait:               30 * time.Second,
		Now:                   func() time.Time { return now },
	}

	exhausted := policy.Evaluate(RateLimitHeaders{Tracked: true, Remaining: 0, ResetUnix: now.Add(45 * time.Minute).Unix()})
	if exhausted.Allow || exhausted.WaitFor != 30*time.Second {
		t.Fatalf("exhausted decision = %+v, want capped 30s wait", exhausted)
	}
	secondary := policy.Evaluate(RateLimitHeaders{SecondaryLimited: true})
	if secondary.WaitFor != 30*time.Second {
		t.Fatalf("secondary WaitFor = %s, want 30s", secondary.WaitFor)
	}
}
