// Package scoring maps pull requests, issues and commits to Dev Coins.
package scoring

import "strings"

const (
	pullRequestBase       = 10
	mergeBonus            = 15
	linesPerPullRequestPt = 10
	linesPerCommitCoin    = 20

	// DirectCommitBonus is awarded per commit found by a history scan that PR sampling missed.
	DirectCommitBonus = 2
)

// PullRequest carries the fields the pull request formula needs.
type PullRequest struct {
	Additions int
	Deletions int
	Merged    bool
}

// LinesChanged returns additions plus deletions, ignoring negative inputs.
func (p PullRequest) LinesChanged() int {
	return max(p.Additions, 0) + max(p.Deletions, 0)
}

// ScorePullRequest scores one pull request for the leaderboard.
func ScorePullRequest(pr PullRequest) int {
	lines := pr.LinesChanged()
	score := pullRequestBase + lines/linesPerPullRequestPt
	if !pr.Merged {
		return score
	}
	score += mergeBonus
	switch {
	case lines > 500:
		score += 20
	case lines > 200:
		score += 10
	case lines > 50:
		score += 5
	}
	return score
}

// Item is an issue or pull request as returned by a contribution search.
type Item struct {
	IsPullRequest bool
	Merged        bool
	Labels        []string
}

var labelBonus = map[string]int{
	"bug":           15,
	"enhancement":   20,
	"documentation": 10,
	"major":         30,
}

// ScoreIssueOrPR scores a generic contribution listing entry.
// Every matching label applies; duplicates of the same label count once.
func ScoreIssueOrPR(item Item) int {
	score := 10
	if item.IsPullRequest {
		score = 30
		if item.Merged {
			score += 20
		}
	}

	seen := make(map[string]struct{}, len(item.Labels))
	for _, label := range item.Labels {
		name := strings.ToLower(strings.TrimSpace(label))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		score += labelBonus[name]
	}
	return score
}

// ScoreCommitLines awards one coin per 20 changed lines.
func ScoreCommitLines(linesChanged int) int {
	if linesChanged <= 0 {
		return 0
	}
	return linesChanged / linesPerCommitCoin
}
