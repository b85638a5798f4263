package contrib

import (
	"reflect"
	"testing"
)

func TestTallyMergeIsOrderIndependent(t *testing.T) {
	t.Parallel()

	repoA := TallyOf(
		UserStats{Username: "alice", AvatarURL: "https://avatars/alice", TotalLinesOfCode: 120, MergedPullRequests: 1, DevCoins: 47},
		UserStats{Username: "bob", OpenPullRequests: 1, DevCoins: 10},
	)
	repoB := TallyOf(
		UserStats{Username: "bob", TotalLinesOfCode: 600, MergedPullRequests: 1, DevCoins: 105},
		UserStats{Username: "alice", TotalCommits: 3, CommitLinesOfCode: 40, DevCoins: 2},
	)
	repoC := TallyOf(
		UserStats{Username: "carol", Name: "Carol", TotalLinesOfCode: 5, OpenPullRequests: 1, DevCoins: 10},
	)

	testCases := []struct {
		name    string
		tallies []Tally
	}{
		{name: "abc", tallies: []Tally{repoA, repoB, repoC}},
		{name: "cba", tallies: []Tally{repoC, repoB, repoA}},
		{name: "bca", tallies: []Tally{repoB, repoC, repoA}},
	}

	want := MergeTallies(repoA, repoB, repoC).Users()
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := MergeTallies(tc.tallies...).Users()
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("MergeTallies(%s) = %+v, want %+v", tc.name, got, want)
			}
		})
	}

	alice, ok := MergeTallies(repoA, repoB).Get("alice")
	if !ok {
		t.Fatalf("Get(alice) missing")
	}
	if alice.DevCoins != 49 || alice.TotalCommits != 3 || alice.AvatarURL != "https://avatars/alice" {
		t.Fatalf("alice = %+v, want summed counters and kept avatar", alice)
	}
}

func TestTallyMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	left := TallyOf(UserStats{Username: "alice", DevCoins: 10})
	right := TallyOf(UserStats{Username: "alice", DevCoins: 5})
	_ = left.Merge(right)

	if got, _ := left.Get("alice"); got.DevCoins != 10 {
		t.Fatalf("left alice DevCoins = %d, want 10", got.DevCoins)
	}
	if got, _ := right.Get("alice"); got.DevCoins != 5 {
		t.Fatalf("right alice DevCoins = %d, want 5", got.DevCoins)
	}
}

func TestTallyOfIgnoresEmptyUsername(t *testing.T) {
	t.Parallel()

	tally := TallyOf(UserStats{DevCoins: 10}, UserStats{Username: "alice", DevCoins: 1})
	if tally.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tally.Len())
	}
}

func TestReconcileDirectCommits(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		before UserStats
		direct DirectCommits
		want   UserStats
	}{
		{
			name:   "fewer_direct_lines_than_sampled_adds_nothing",
			before: UserStats{Username: "alice", TotalLinesOfCode: 300, TotalCommits: 4, CommitLinesOfCode: 100, DevCoins: 50},
			direct: DirectCommits{Commits: 4, LinesOfCode: 80},
			want:   UserStats{Username: "alice", TotalLinesOfCode: 300, TotalCommits: 4, CommitLinesOfCode: 100, DevCoins: 50},
		},
		{
			name:   "excess_direct_lines_are_added_once",
			before: UserStats{Username: "alice", TotalLinesOfCode: 300, TotalCommits: 4, CommitLinesOfCode: 100, DevCoins: 50},
			direct: DirectCommits{Commits: 4, LinesOfCode: 180},
			want:   UserStats{Username: "alice", TotalLinesOfCode: 380, TotalCommits: 4, CommitLinesOfCode: 180, DevCoins: 50},
		},
		{
			name:   "extra_direct_commits_earn_bonus",
			before: UserStats{Username: "alice", TotalCommits: 2, CommitLinesOfCode: 100, DevCoins: 50},
			direct: DirectCommits{Commits: 5, LinesOfCode: 100},
			want:   UserStats{Username: "alice", TotalCommits: 5, CommitLinesOfCode: 100, DevCoins: 56},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := reconcileDirectCommits(
				TallyOf(tc.before),
				map[string]DirectCommits{tc.before.Username: tc.direct},
				newDirectCommitUser,
				2,
			)
			row, _ := got.Get(tc.before.Username)
			if row != tc.want {
				t.Fatalf("reconcileDirectCommits() = %+v, want %+v", row, tc.want)
			}
		})
	}
}

func TestReconcileDirectCommitsCreatesNewUsers(t *testing.T) {
	t.Parallel()

	got := reconcileDirectCommits(Tally{}, map[string]DirectCommits{"dave": {Commits: 3, LinesOfCode: 130}}, newDirectCommitUser, 2)
	row, ok := got.Get("dave")
	if !ok {
		t.Fatalf("Get(dave) missing")
	}
	want := UserStats{Username: "dave", TotalLinesOfCode: 130, DevCoins: 6, TotalCommits: 3, CommitLinesOfCode: 130}
	if row != want {
		t.Fatalf("dave = %+v, want %+v", row, want)
	}
}

func TestCommitTallyMerge(t *testing.T) {
	t.Parallel()

	left := commitTallyOf(map[string]AuthorCommits{"alice": {Commits: 1, Additions: 10, Deletions: 2}})
	right := commitTallyOf(map[string]AuthorCommits{
		"alice": {Commits: 2, Additions: 5},
		"bob":   {Commits: 1, Deletions: 7},
	})

	got := left.Merge(right).Map()
	if !reflect.DeepEqual(got, right.Merge(left).Map()) {
		t.Fatalf("CommitTally.Merge is not commutative")
	}
	if got["alice"] != (AuthorCommits{Commits: 3, Additions: 15, Deletions: 2}) {
		t.Fatalf("alice = %+v, want 3 commits, 15 additions, 2 deletions", got["alice"])
	}
	if got["bob"].Lines() != 7 {
		t.Fatalf("bob lines = %d, want 7", got["bob"].Lines())
	}
}

func TestRankUsers(t *testing.T) {
	t.Parallel()

	rows := []UserStats{
		{Username: "carol", DevCoins: 10},
		{Username: "alice", DevCoins: 90},
		{Username: "bob", DevCoins: 10},
	}
	rankUsers(rows)

	got := []string{rows[0].Username, rows[1].Username, rows[2].Username}
	want := []string{"alice", "bob", "carol"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rankUsers() order = %v, want %v", got, want)
	}
}

func TestReportMerge(t *testing.T) {
	t.Parallel()

	var left Report
	left.skip(SkipProfile)
	left.skip(SkipProfile)
	right := Report{Skipped: map[SkipReason]int{SkipCommitDetail: 1}}

	merged := left.Merge(right)
	if merged.Count(SkipProfile) != 2 || merged.Count(SkipCommitDetail) != 1 {
		t.Fatalf("Merge() = %+v, want profile=2 commit_detail=1", merged.Skipped)
	}
	if merged.Total() != 3 {
		t.Fatalf("Total() = %d, want 3", merged.Total())
	}
	if got := merged.Reasons(); !reflect.DeepEqual(got, []SkipReason{SkipCommitDetail, SkipProfile}) {
		t.Fatalf("Reasons() = %v, want sorted reasons", got)
	}
	if left.Count(SkipCommitDetail) != 0 {
		t.Fatalf("Merge() mutated its receiver")
	}
}
