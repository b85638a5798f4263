package githubapi

import "time"

// Repository is one repository listing entry.
type Repository struct {
	ID          int64
	Name        string
	FullName    string
	Owner       string
	Description string
	HTMLURL     string
	Language    string
	Stars       int
	OpenIssues  int
	UpdatedAt   time.Time
	Fork        bool
}

// RepositoryRef identifies a repository by owner and name.
type RepositoryRef struct {
	Owner string
	Name  string
}

// RepositoryDetail is a repository with its fork parent, when any.
type RepositoryDetail struct {
	Repository
	Parent *RepositoryRef
}

// PullRequest is a pull request summary or detail. Detail calls fill
// Additions, Deletions and Merged; listings leave them zero.
type PullRequest struct {
	ID           int64
	Number       int
	Title        string
	HTMLURL      string
	State        string
	Author       string
	AuthorAvatar string
	CreatedAt    time.Time
	MergedAt     time.Time
	Merged       bool
	Additions    int
	Deletions    int
}

// HasAuthor reports whether the pull request can be attributed.
func (p PullRequest) HasAuthor() bool {
	return p.Author != ""
}

// CommitQuery filters a commit listing.
type CommitQuery struct {
	Author string
	Since  time.Time
}

// Commit is one commit listing entry.
type Commit struct {
	SHA         string
	Message     string
	HTMLURL     string
	AuthorLogin string
	AuthorEmail string
	AuthoredAt  time.Time
}

// CommitDetail carries the diff totals of one commit.
type CommitDetail struct {
	SHA       string
	Additions int
	Deletions int
}

// Member is an organization member, outside collaborator or team member.
type Member struct {
	ID        int64
	Login     string
	AvatarURL string
}

// Team is one organization team.
type Team struct {
	ID   int64
	Name string
	Slug string
}

// UserProfile is a public user profile.
type UserProfile struct {
	ID              int64
	Login           string
	Name            string
	AvatarURL       string
	Bio             string
	Email           string
	Company         string
	Location        string
	Blog            string
	TwitterUsername string
}

// IssueSearchItem is one issue or pull request returned by issue search.
type IssueSearchItem struct {
	ID            int64
	Number        int
	Title         string
	HTMLURL       string
	RepositoryURL string
	State         string
	CreatedAt     time.Time
	IsPullRequest bool
	Merged        bool
	Labels        []string
}

// RateLimit is the core REST budget.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}
