package contrib

import (
	"maps"
	"slices"
)

// SkipReason names why a single item was left out of a build.
type SkipReason string

const (
	SkipForkParent          SkipReason = "fork_parent_lookup_failed"
	SkipPullRequestListing  SkipReason = "pull_request_listing_failed"
	SkipPullRequestDetail   SkipReason = "pull_request_detail_failed"
	SkipCommitListing       SkipReason = "commit_listing_failed"
	SkipCommitDetail        SkipReason = "commit_detail_failed"
	SkipUnattributed        SkipReason = "unattributed"
	SkipProfile             SkipReason = "profile_lookup_failed"
	SkipCollaborators       SkipReason = "collaborator_listing_failed"
	SkipMemberListing       SkipReason = "member_listing_failed"
	SkipTeamListing         SkipReason = "team_listing_failed"
	SkipTeamMembers         SkipReason = "team_member_listing_failed"
	SkipAdminListing        SkipReason = "admin_listing_failed"
	SkipRepositoryListing   SkipReason = "repository_listing_failed"
	SkipContributionListing SkipReason = "contribution_listing_failed"
	SkipContributionMerge   SkipReason = "contribution_merge_failed"
)

// Outcome is the result of one per-item fetch: either a value or the reason
// it was skipped.
type Outcome[T any] struct {
	Value T
	Skip  SkipReason
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

// Skipped records a skipped item.
func Skipped[T any](reason SkipReason, err error) Outcome[T] {
	return Outcome[T]{Skip: reason, Err: err}
}

// OK reports whether the item was produced.
func (o Outcome[T]) OK() bool {
	return o.Skip == ""
}

// Report summarizes how much a build degraded. The zero value is empty.
type Report struct {
	// Cached is set when the result was served from the cache.
	Cached  bool               `json:"cached"`
	Skipped map[SkipReason]int `json:"skipped,omitempty"`
}

// Count returns the number of items skipped for reason.
func (r Report) Count(reason SkipReason) int {
	return r.Skipped[reason]
}

// Total returns the number of skipped items across all reasons.
func (r Report) Total() int {
	total := 0
	for _, count := range r.Skipped {
		total += count
	}
	return total
}

// Reasons returns the recorded reasons in sorted order.
func (r Report) Reasons() []SkipReason {
	return slices.Sorted(maps.Keys(r.Skipped))
}

// Merge returns a report holding the counts of both inputs.
func (r Report) Merge(other Report) Report {
	merged := Report{Cached: r.Cached && other.Cached}
	for _, src := range []map[SkipReason]int{r.Skipped, other.Skipped} {
		for reason, count := range src {
			if merged.Skipped == nil {
				merged.Skipped = make(map[SkipReason]int)
			}
			merged.Skipped[reason] += count
		}
	}
	return merged
}

func (r *Report) skip(reason SkipReason) {
	if r.Skipped == nil {
		r.Skipped = make(map[SkipReason]int)
	}
	r.Skipped[reason]++
}

// record folds an outcome into the report and reports whether it carried a value.
func record[T any](r *Report, outcome Outcome[T]) bool {
	if outcome.OK() {
		return true
	}
	r.skip(outcome.Skip)
	return false
}
