package scoring

import "testing"

func TestScorePullRequest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		pr   PullRequest
		want int
	}{
		{name: "open_empty", pr: PullRequest{}, want: 10},
		{name: "merged_empty", pr: PullRequest{Merged: true}, want: 25},
		{name: "open_volume", pr: PullRequest{Additions: 95, Deletions: 10}, want: 20},
		{name: "merged_small_tier", pr: PullRequest{Additions: 51, Merged: true}, want: 10 + 5 + 15 + 5},
		{name: "merged_mid_tier", pr: PullRequest{Additions: 201, Merged: true}, want: 10 + 20 + 15 + 10},
		{name: "merged_at_500", pr: PullRequest{Additions: 500, Merged: true}, want: 10 + 50 + 15 + 10},
		{name: "merged_at_501", pr: PullRequest{Additions: 501, Merged: true}, want: 10 + 50 + 15 + 20},
		{name: "end_to_end_alice", pr: PullRequest{Additions: 300, Deletions: 250, Merged: true}, want: 10 + 55 + 15 + 20},
		{name: "negative_stats_ignored", pr: PullRequest{Additions: -40, Deletions: -1}, want: 10},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ScorePullRequest(tc.pr); got != tc.want {
				t.Fatalf("ScorePullRequest(%+v) = %d, want %d", tc.pr, got, tc.want)
			}
		})
	}
}

func TestScorePullRequestMergeBonus(t *testing.T) {
	t.Parallel()

	merged := ScorePullRequest(PullRequest{Merged: true})
	open := ScorePullRequest(PullRequest{})
	if merged-open != 15 {
		t.Fatalf("merge bonus = %d, want 15", merged-open)
	}
}

func TestScorePullRequestTierBump(t *testing.T) {
	t.Parallel()

	at500 := ScorePullRequest(PullRequest{Additions: 500, Merged: true})
	at501 := ScorePullRequest(PullRequest{Additions: 501, Merged: true})
	if at501-at500 != 10 {
		t.Fatalf("tier bump at 501 = %d, want 10", at501-at500)
	}
}

func TestScorePullRequestMonotonic(t *testing.T) {
	t.Parallel()

	for _, merged := range []bool{false, true} {
		prev := ScorePullRequest(PullRequest{Merged: merged})
		for lines := 1; lines <= 1200; lines++ {
			got := ScorePullRequest(PullRequest{Additions: lines, Merged: merged})
			if got < prev {
				t.Fatalf("merged=%t lines=%d score %d < previous %d", merged, lines, got, prev)
			}
			prev = got
		}
	}
}

func TestScoreIssueOrPR(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		item Item
		want int
	}{
		{name: "issue", item: Item{}, want: 10},
		{name: "open_pr", item: Item{IsPullRequest: true}, want: 30},
		{name: "merged_pr", item: Item{IsPullRequest: true, Merged: true}, want: 50},
		{name: "merged_flag_ignored_for_issue", item: Item{Merged: true}, want: 10},
		{name: "bug_label_case_insensitive", item: Item{Labels: []string{"BUG"}}, want: 25},
		{
			name: "all_labels_stack",
			item: Item{IsPullRequest: true, Labels: []string{"bug", "Enhancement", "documentation", "major"}},
			want: 30 + 15 + 20 + 10 + 30,
		},
		{name: "unknown_label", item: Item{Labels: []string{"question"}}, want: 10},
		{name: "repeated_label_counts_once", item: Item{Labels: []string{"bug", "Bug"}}, want: 25},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ScoreIssueOrPR(tc.item); got != tc.want {
				t.Fatalf("ScoreIssueOrPR(%+v) = %d, want %d", tc.item, got, tc.want)
			}
		})
	}
}

func TestScoreCommitLines(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		lines int
		want  int
	}{
		{lines: -5, want: 0},
		{lines: 0, want: 0},
		{lines: 19, want: 0},
		{lines: 20, want: 1},
		{lines: 399, want: 19},
	}
	for _, tc := range testCases {
		if got := ScoreCommitLines(tc.lines); got != tc.want {
			t.Fatalf("ScoreCommitLines(%d) = %d, want %d", tc.lines, got, tc.want)
		}
	}
}
