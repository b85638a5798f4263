package contrib

import (
	"cmp"
	"maps"
	"slices"
)

// Tally is an immutable username -> UserStats accumulator. Tallies are built
// per repository and combined with Merge, which is commutative and
// associative, so repository order never changes the final totals.
type Tally struct {
	users map[string]UserStats
}

// TallyOf folds per-item deltas into a tally.
func TallyOf(deltas ...UserStats) Tally {
	users := make(map[string]UserStats, len(deltas))
	for _, delta := range deltas {
		if delta.Username == "" {
			continue
		}
		if existing, ok := users[delta.Username]; ok {
			users[delta.Username] = addStats(existing, delta)
			continue
		}
		users[delta.Username] = delta
	}
	return Tally{users: users}
}

// Merge returns a new tally holding the sum of t and other.
func (t Tally) Merge(other Tally) Tally {
	users := make(map[string]UserStats, len(t.users)+len(other.users))
	maps.Copy(users, t.users)
	for username, stats := range other.users {
		if existing, ok := users[username]; ok {
			users[username] = addStats(existing, stats)
			continue
		}
		users[username] = stats
	}
	return Tally{users: users}
}

// MergeTallies merges any number of tallies.
func MergeTallies(tallies ...Tally) Tally {
	merged := Tally{}
	for _, tally := range tallies {
		merged = merged.Merge(tally)
	}
	return merged
}

// Get returns the stats for username.
func (t Tally) Get(username string) (UserStats, bool) {
	stats, ok := t.users[username]
	return stats, ok
}

// Len returns the number of users.
func (t Tally) Len() int {
	return len(t.users)
}

// Usernames returns the users in sorted order.
func (t Tally) Usernames() []string {
	return slices.Sorted(maps.Keys(t.users))
}

// Users returns a copy of every row sorted by username.
func (t Tally) Users() []UserStats {
	out := make([]UserStats, 0, len(t.users))
	for _, username := range t.Usernames() {
		out = append(out, t.users[username])
	}
	return out
}

// addStats sums counters. Text fields keep the non-empty value, and the
// lexically smaller one when both are set, so the result is order independent.
func addStats(a, b UserStats) UserStats {
	return UserStats{
		Username:           a.Username,
		Name:               pickText(a.Name, b.Name),
		AvatarURL:          pickText(a.AvatarURL, b.AvatarURL),
		TotalLinesOfCode:   a.TotalLinesOfCode + b.TotalLinesOfCode,
		MergedPullRequests: a.MergedPullRequests + b.MergedPullRequests,
		OpenPullRequests:   a.OpenPullRequests + b.OpenPullRequests,
		DevCoins:           a.DevCoins + b.DevCoins,
		TotalCommits:       a.TotalCommits + b.TotalCommits,
		CommitLinesOfCode:  a.CommitLinesOfCode + b.CommitLinesOfCode,
	}
}

func pickText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return min(a, b)
	}
}

// CommitTally is an immutable author -> AuthorCommits accumulator with the
// same merge guarantees as Tally.
type CommitTally struct {
	authors map[string]AuthorCommits
}

// Merge returns a new tally holding the sum of t and other.
func (t CommitTally) Merge(other CommitTally) CommitTally {
	authors := make(map[string]AuthorCommits, len(t.authors)+len(other.authors))
	maps.Copy(authors, t.authors)
	for author, commits := range other.authors {
		authors[author] = authors[author].Add(commits)
	}
	return CommitTally{authors: authors}
}

// Get returns the totals for author.
func (t CommitTally) Get(author string) (AuthorCommits, bool) {
	commits, ok := t.authors[author]
	return commits, ok
}

// Len returns the number of authors.
func (t CommitTally) Len() int {
	return len(t.authors)
}

// Map returns a copy of the underlying totals.
func (t CommitTally) Map() map[string]AuthorCommits {
	return maps.Clone(t.authors)
}

// commitTallyOf folds per-commit entries into a tally.
func commitTallyOf(entries map[string]AuthorCommits) CommitTally {
	return CommitTally{authors: maps.Clone(entries)}
}

// reconcileDirectCommits folds a history scan into leaderboard rows. Lines
// already counted through sampled commits are not counted again: the larger
// measurement wins and only the excess reaches TotalLinesOfCode. Each commit
// beyond the sampled count earns DirectCommitBonus.
func reconcileDirectCommits(tally Tally, direct map[string]DirectCommits, newUser func(username string, totals DirectCommits) UserStats, bonus int) Tally {
	users := make(map[string]UserStats, len(tally.users)+len(direct))
	maps.Copy(users, tally.users)

	for username, totals := range direct {
		stats, ok := users[username]
		if !ok {
			users[username] = newUser(username, totals)
			continue
		}
		stats.TotalLinesOfCode += max(0, totals.LinesOfCode-stats.CommitLinesOfCode)
		stats.CommitLinesOfCode = max(stats.CommitLinesOfCode, totals.LinesOfCode)
		if totals.Commits > stats.TotalCommits {
			stats.DevCoins += (totals.Commits - stats.TotalCommits) * bonus
			stats.TotalCommits = totals.Commits
		}
		users[username] = stats
	}
	return Tally{users: users}
}

// rankUsers orders rows by DevCoins descending, then username.
func rankUsers(rows []UserStats) {
	slices.SortStableFunc(rows, func(a, b UserStats) int {
		if c := cmp.Compare(b.DevCoins, a.DevCoins); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
}

// rankMembers orders members by DevCoins descending, then username.
func rankMembers(rows []GithubMember) {
	slices.SortStableFunc(rows, func(a, b GithubMember) int {
		if c := cmp.Compare(b.DevCoins, a.DevCoins); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
}
