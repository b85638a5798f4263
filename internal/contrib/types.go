package contrib

import (
	"strings"
	"time"

	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
)

// TimeFrame is the window applied to contribution timestamps.
type TimeFrame string

const (
	TimeFrameAll   TimeFrame = "all"
	TimeFrameMonth TimeFrame = "month"
	TimeFrameWeek  TimeFrame = "week"
)

// TimeFrames lists every supported timeframe.
var TimeFrames = []TimeFrame{TimeFrameAll, TimeFrameMonth, TimeFrameWeek}

// ParseTimeFrame parses a timeframe label. Empty input means all.
func ParseTimeFrame(raw string) (TimeFrame, error) {
	switch tf := TimeFrame(strings.ToLower(strings.TrimSpace(raw))); tf {
	case "":
		return TimeFrameAll, nil
	case TimeFrameAll, TimeFrameMonth, TimeFrameWeek:
		return tf, nil
	default:
		return "", perr.InvalidArgf("unknown timeframe %q (want all, month or week)", raw)
	}
}

// Since returns the lower bound for tf, or the zero time for all.
// A month is one calendar month back from now.
func (tf TimeFrame) Since(now time.Time) time.Time {
	switch tf {
	case TimeFrameMonth:
		return now.AddDate(0, -1, 0)
	case TimeFrameWeek:
		return now.AddDate(0, 0, -7)
	default:
		return time.Time{}
	}
}

// Includes reports whether ts falls inside the window ending at now.
func (tf TimeFrame) Includes(ts, now time.Time) bool {
	since := tf.Since(now)
	return since.IsZero() || !ts.Before(since)
}

// ParentRepo names the repository a fork was copied from.
type ParentRepo struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Repository is one organization repository with its recent pull requests.
type Repository struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Owner        string        `json:"owner"`
	Description  string        `json:"description"`
	URL          string        `json:"url"`
	Stars        int           `json:"stars"`
	Language     string        `json:"language"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	OpenIssues   int           `json:"openIssues"`
	PullRequests []PullRequest `json:"pullRequests"`
	Fork         bool          `json:"fork"`
	ParentRepo   *ParentRepo   `json:"parentRepo,omitempty"`
}

// Target returns the repository contributions are attributed to: the parent
// of a resolved fork, otherwise the repository itself under org.
func (r Repository) Target(org string) githubapi.RepositoryRef {
	if r.Fork && r.ParentRepo != nil {
		return githubapi.RepositoryRef{Owner: r.ParentRepo.Owner, Name: r.ParentRepo.Name}
	}
	return githubapi.RepositoryRef{Owner: org, Name: r.Name}
}

// PullRequestStatus is the derived pull request state.
type PullRequestStatus string

const (
	StatusOpen   PullRequestStatus = "open"
	StatusClosed PullRequestStatus = "closed"
	StatusMerged PullRequestStatus = "merged"
)

// StatusFor derives the status of a provider pull request. A merge
// timestamp wins over the raw state.
func StatusFor(pr githubapi.PullRequest) PullRequestStatus {
	switch {
	case pr.Merged || !pr.MergedAt.IsZero():
		return StatusMerged
	case pr.State == "open":
		return StatusOpen
	default:
		return StatusClosed
	}
}

// PullRequest is a snapshot of one pull request at fetch time.
type PullRequest struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	URL       string            `json:"url"`
	Author    string            `json:"author"`
	CreatedAt time.Time         `json:"createdAt"`
	Status    PullRequestStatus `json:"status"`
	Additions int               `json:"additions"`
	Deletions int               `json:"deletions"`
}

// CommitRecord is one commit in one repository.
type CommitRecord struct {
	Author     string    `json:"author"`
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	Date       time.Time `json:"date"`
	URL        string    `json:"url"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
	Repository string    `json:"repository"`
}

// UserStats is one leaderboard row keyed by username.
//
// TotalLinesOfCode accumulates pull request diff stats and CommitLinesOfCode
// accumulates commit diff stats. They only meet during direct-commit
// reconciliation, which takes the larger measurement.
type UserStats struct {
	Username           string `json:"username"`
	Name               string `json:"name"`
	AvatarURL          string `json:"avatarUrl"`
	TotalLinesOfCode   int    `json:"totalLinesOfCode"`
	MergedPullRequests int    `json:"mergedPullRequests"`
	OpenPullRequests   int    `json:"openPullRequests"`
	DevCoins           int    `json:"devCoins"`
	TotalCommits       int    `json:"totalCommits"`
	CommitLinesOfCode  int    `json:"commitLinesOfCode"`
}

// Contributions mirrors the count fields of UserStats for a member.
type Contributions struct {
	TotalLinesOfCode   int `json:"totalLinesOfCode"`
	MergedPullRequests int `json:"mergedPullRequests"`
	OpenPullRequests   int `json:"openPullRequests"`
	TotalCommits       int `json:"totalCommits"`
	CommitLinesOfCode  int `json:"commitLinesOfCode"`
}

// ContributionsOf copies the count fields of stats.
func ContributionsOf(stats UserStats) Contributions {
	return Contributions{
		TotalLinesOfCode:   stats.TotalLinesOfCode,
		MergedPullRequests: stats.MergedPullRequests,
		OpenPullRequests:   stats.OpenPullRequests,
		TotalCommits:       stats.TotalCommits,
		CommitLinesOfCode:  stats.CommitLinesOfCode,
	}
}

// Role is a member's relationship to the organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleOutside Role = "outside"
)

// GithubMember is one member directory row keyed by username.
type GithubMember struct {
	ID              int64         `json:"id"`
	Username        string        `json:"username"`
	Name            string        `json:"name"`
	AvatarURL       string        `json:"avatarUrl"`
	Bio             string        `json:"bio"`
	Email           string        `json:"email"`
	Company         string        `json:"company"`
	Location        string        `json:"location"`
	Blog            string        `json:"blog"`
	TwitterUsername string        `json:"twitterUsername"`
	TeamNames       []string      `json:"teamNames"`
	Role            Role          `json:"role"`
	Contributions   Contributions `json:"contributions"`
	DevCoins        int           `json:"devCoins"`
}

// ContributionType tags a UserContribution.
type ContributionType string

const (
	ContributionPR     ContributionType = "PR"
	ContributionIssue  ContributionType = "ISSUE"
	ContributionCommit ContributionType = "COMMIT"
)

// UserContribution is one scored issue, pull request or commit of a user.
type UserContribution struct {
	ID          string           `json:"id"`
	Type        ContributionType `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	URL         string           `json:"url"`
	CreatedAt   time.Time        `json:"createdAt"`
	Repository  string           `json:"repository"`
	Status      string           `json:"status"`
	Points      int              `json:"points"`
}

// AuthorCommits totals the commits of one author.
type AuthorCommits struct {
	Commits   int `json:"commits"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Lines returns additions plus deletions.
func (a AuthorCommits) Lines() int {
	return a.Additions + a.Deletions
}

// Add returns the field-wise sum of a and b.
func (a AuthorCommits) Add(b AuthorCommits) AuthorCommits {
	return AuthorCommits{
		Commits:   a.Commits + b.Commits,
		Additions: a.Additions + b.Additions,
		Deletions: a.Deletions + b.Deletions,
	}
}

// DirectCommits totals the commits found by scanning repository history.
type DirectCommits struct {
	Commits     int `json:"commits"`
	LinesOfCode int `json:"linesOfCode"`
}
