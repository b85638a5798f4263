package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

const (
	defaultPerPage = 100
	maxPerPage     = 100
)

// ClientConfig configures a data client.
type ClientConfig struct {
	APIBaseURL  string
	Credentials Credentials
	Timeout     time.Duration
	Retry       RetryConfig
	RateLimit   RateLimitPolicy
}

// DataClient is a typed GitHub REST client for the endpoints contribution
// aggregation needs. Listing calls fetch exactly one page and return the next
// page number (0 when exhausted) so callers can drive a Paginator.
type DataClient struct {
	rest      *github.Client
	transport *Transport
	mode      AuthMode
}

// NewDataClient builds a client that authenticates with cfg.Credentials.
func NewDataClient(cfg ClientConfig) (*DataClient, error) {
	httpClient, err := NewAuthenticatedHTTPClient(cfg.Credentials, cfg.Timeout, nil)
	if err != nil {
		return nil, err
	}
	client, err := NewDataClientFromHTTP(httpClient, cfg.APIBaseURL, cfg.Retry, cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	client.mode = cfg.Credentials.Mode()
	return client, nil
}

// NewDataClientFromHTTP layers retry and rate-limit handling over httpClient.
func NewDataClientFromHTTP(
	httpClient *http.Client,
	apiBaseURL string,
	retry RetryConfig,
	ratePolicy RateLimitPolicy,
) (*DataClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	transport := NewTransport(NewClient(httpClient, retry, ratePolicy))
	rest, err := newRESTClient(&http.Client{Transport: transport}, apiBaseURL)
	if err != nil {
		return nil, err
	}
	return &DataClient{rest: rest, transport: transport, mode: AuthModeAnonymous}, nil
}

// AuthMode reports the identity the client authenticates as.
func (c *DataClient) AuthMode() AuthMode {
	return c.mode
}

// LastCall returns retry and rate-limit metadata from the most recent request.
func (c *DataClient) LastCall() CallMetadata {
	return c.transport.LastCall()
}

// ListOrgRepos lists one page of organization repositories, forks included.
func (c *DataClient) ListOrgRepos(ctx context.Context, org string, page int) ([]Repository, int, error) {
	repos, resp, err := c.rest.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list org repos", resp, err)
	}
	return toRepositories(repos), nextPage(resp), nil
}

// ListUserRepos lists one page of repositories visible to the authenticated caller.
func (c *DataClient) ListUserRepos(ctx context.Context, page int) ([]Repository, int, error) {
	repos, resp, err := c.rest.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list user repos", resp, err)
	}
	return toRepositories(repos), nextPage(resp), nil
}

// SearchRepos runs one page of a repository search.
func (c *DataClient) SearchRepos(ctx context.Context, query string, page int) ([]Repository, int, error) {
	result, resp, err := c.rest.Search.Repositories(ctx, query, &github.SearchOptions{
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("search repos", resp, err)
	}
	return toRepositories(result.Repositories), nextPage(resp), nil
}

// GetRepo reads one repository including its fork parent.
func (c *DataClient) GetRepo(ctx context.Context, owner, name string) (RepositoryDetail, error) {
	repo, resp, err := c.rest.Repositories.Get(ctx, owner, name)
	if err != nil {
		return RepositoryDetail{}, classifyError("get repo", resp, err)
	}

	detail := RepositoryDetail{Repository: toRepository(repo)}
	if parent := repo.GetParent(); parent != nil && parent.GetName() != "" {
		detail.Parent = &RepositoryRef{
			Owner: parent.GetOwner().GetLogin(),
			Name:  parent.GetName(),
		}
	}
	return detail, nil
}

// ListPullRequests lists one page of pull requests in all states, most recently updated first.
func (c *DataClient) ListPullRequests(ctx context.Context, owner, repo string, page, perPage int) ([]PullRequest, int, error) {
	prs, resp, err := c.rest.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: listOptions(page, perPage),
	})
	if err != nil {
		return nil, 0, classifyError("list pull requests", resp, err)
	}

	result := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		result = append(result, toPullRequest(pr))
	}
	return result, nextPage(resp), nil
}

// GetPullRequest reads pull request detail including diff totals.
func (c *DataClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	pr, resp, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequest{}, classifyError("get pull request", resp, err)
	}
	return toPullRequest(pr), nil
}

// ListCommits lists one page of commits matching query.
func (c *DataClient) ListCommits(ctx context.Context, owner, repo string, query CommitQuery, page, perPage int) ([]Commit, int, error) {
	commits, resp, err := c.rest.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
		Author:      query.Author,
		Since:       query.Since,
		ListOptions: listOptions(page, perPage),
	})
	if err != nil {
		return nil, 0, classifyError("list commits", resp, err)
	}

	result := make([]Commit, 0, len(commits))
	for _, commit := range commits {
		result = append(result, Commit{
			SHA:         commit.GetSHA(),
			Message:     commit.GetCommit().GetMessage(),
			HTMLURL:     commit.GetHTMLURL(),
			AuthorLogin: commit.GetAuthor().GetLogin(),
			AuthorEmail: commit.GetCommit().GetAuthor().GetEmail(),
			AuthoredAt:  commit.GetCommit().GetAuthor().GetDate().Time,
		})
	}
	return result, nextPage(resp), nil
}

// GetCommit reads the diff totals of one commit. Totals come from the stats
// block when present, otherwise from the per-file entries.
func (c *DataClient) GetCommit(ctx context.Context, owner, repo, sha string) (CommitDetail, error) {
	commit, resp, err := c.rest.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return CommitDetail{}, classifyError("get commit", resp, err)
	}

	detail := CommitDetail{SHA: commit.GetSHA()}
	if stats := commit.GetStats(); stats != nil {
		detail.Additions = stats.GetAdditions()
		detail.Deletions = stats.GetDeletions()
		return detail, nil
	}
	for _, file := range commit.Files {
		detail.Additions += file.GetAdditions()
		detail.Deletions += file.GetDeletions()
	}
	return detail, nil
}

// ListOrgMembers lists one page of organization members. role is "all", "admin" or "member".
func (c *DataClient) ListOrgMembers(ctx context.Context, org, role string, page int) ([]Member, int, error) {
	users, resp, err := c.rest.Organizations.ListMembers(ctx, org, &github.ListMembersOptions{
		Role:        role,
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list org members", resp, err)
	}
	return toMembers(users), nextPage(resp), nil
}

// ListOutsideCollaborators lists one page of the organization's outside collaborators.
func (c *DataClient) ListOutsideCollaborators(ctx context.Context, org string, page int) ([]Member, int, error) {
	users, resp, err := c.rest.Organizations.ListOutsideCollaborators(ctx, org, &github.ListOutsideCollaboratorsOptions{
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list outside collaborators", resp, err)
	}
	return toMembers(users), nextPage(resp), nil
}

// ListTeams lists one page of organization teams.
func (c *DataClient) ListTeams(ctx context.Context, org string, page int) ([]Team, int, error) {
	teams, resp, err := c.rest.Teams.ListTeams(ctx, org, ptr(listOptions(page, defaultPerPage)))
	if err != nil {
		return nil, 0, classifyError("list teams", resp, err)
	}

	result := make([]Team, 0, len(teams))
	for _, team := range teams {
		result = append(result, Team{ID: team.GetID(), Name: team.GetName(), Slug: team.GetSlug()})
	}
	return result, nextPage(resp), nil
}

// ListTeamMembers lists one page of a team's members.
func (c *DataClient) ListTeamMembers(ctx context.Context, org, teamSlug string, page int) ([]Member, int, error) {
	users, resp, err := c.rest.Teams.ListTeamMembersBySlug(ctx, org, teamSlug, &github.TeamListTeamMembersOptions{
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list team members", resp, err)
	}
	return toMembers(users), nextPage(resp), nil
}

// ListRepoAdmins lists one page of collaborators holding admin permission on a repository.
func (c *DataClient) ListRepoAdmins(ctx context.Context, owner, repo string, page int) ([]Member, int, error) {
	users, resp, err := c.rest.Repositories.ListCollaborators(ctx, owner, repo, &github.ListCollaboratorsOptions{
		Permission:  "admin",
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("list repo admins", resp, err)
	}
	return toMembers(users), nextPage(resp), nil
}

// GetUser reads a public user profile.
func (c *DataClient) GetUser(ctx context.Context, login string) (UserProfile, error) {
	user, resp, err := c.rest.Users.Get(ctx, login)
	if err != nil {
		return UserProfile{}, classifyError("get user", resp, err)
	}
	return UserProfile{
		ID:              user.GetID(),
		Login:           user.GetLogin(),
		Name:            user.GetName(),
		AvatarURL:       user.GetAvatarURL(),
		Bio:             user.GetBio(),
		Email:           user.GetEmail(),
		Company:         user.GetCompany(),
		Location:        user.GetLocation(),
		Blog:            user.GetBlog(),
		TwitterUsername: user.GetTwitterUsername(),
	}, nil
}

// SearchIssues runs one page of an issue/pull request search, newest first.
func (c *DataClient) SearchIssues(ctx context.Context, query string, page int) ([]IssueSearchItem, int, error) {
	result, resp, err := c.rest.Search.Issues(ctx, query, &github.SearchOptions{
		Sort:        "created",
		Order:       "desc",
		ListOptions: listOptions(page, defaultPerPage),
	})
	if err != nil {
		return nil, 0, classifyError("search issues", resp, err)
	}

	items := make([]IssueSearchItem, 0, len(result.Issues))
	for _, issue := range result.Issues {
		item := IssueSearchItem{
			ID:            issue.GetID(),
			Number:        issue.GetNumber(),
			Title:         issue.GetTitle(),
			HTMLURL:       issue.GetHTMLURL(),
			RepositoryURL: issue.GetRepositoryURL(),
			State:         issue.GetState(),
			CreatedAt:     issue.GetCreatedAt().Time,
			IsPullRequest: issue.IsPullRequest(),
		}
		if links := issue.PullRequestLinks; links != nil && links.MergedAt != nil {
			item.Merged = !links.MergedAt.IsZero()
		}
		for _, label := range issue.Labels {
			item.Labels = append(item.Labels, label.GetName())
		}
		items = append(items, item)
	}
	return items, nextPage(resp), nil
}

// RateLimit reads the core REST budget.
func (c *DataClient) RateLimit(ctx context.Context) (RateLimit, error) {
	limits, resp, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return RateLimit{}, classifyError("get rate limit", resp, err)
	}
	core := limits.GetCore()
	if core == nil {
		return RateLimit{}, nil
	}
	return RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}

func toRepositories(repos []*github.Repository) []Repository {
	result := make([]Repository, 0, len(repos))
	for _, repo := range repos {
		if repo == nil {
			continue
		}
		result = append(result, toRepository(repo))
	}
	return result
}

func toRepository(repo *github.Repository) Repository {
	return Repository{
		ID:          repo.GetID(),
		Name:        repo.GetName(),
		FullName:    repo.GetFullName(),
		Owner:       repo.GetOwner().GetLogin(),
		Description: repo.GetDescription(),
		HTMLURL:     repo.GetHTMLURL(),
		Language:    repo.GetLanguage(),
		Stars:       repo.GetStargazersCount(),
		OpenIssues:  repo.GetOpenIssuesCount(),
		UpdatedAt:   repo.GetUpdatedAt().Time,
		Fork:        repo.GetFork(),
	}
}

func toPullRequest(pr *github.PullRequest) PullRequest {
	mergedAt := pr.GetMergedAt().Time
	return PullRequest{
		ID:           pr.GetID(),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		HTMLURL:      pr.GetHTMLURL(),
		State:        pr.GetState(),
		Author:       pr.GetUser().GetLogin(),
		AuthorAvatar: pr.GetUser().GetAvatarURL(),
		CreatedAt:    pr.GetCreatedAt().Time,
		MergedAt:     mergedAt,
		Merged:       pr.GetMerged() || !mergedAt.IsZero(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
	}
}

func toMembers(users []*github.User) []Member {
	result := make([]Member, 0, len(users))
	for _, user := range users {
		if user.GetLogin() == "" {
			continue
		}
		result = append(result, Member{ID: user.GetID(), Login: user.GetLogin(), AvatarURL: user.GetAvatarURL()})
	}
	return result
}

func listOptions(page, perPage int) github.ListOptions {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return github.ListOptions{Page: page, PerPage: perPage}
}

func nextPage(resp *github.Response) int {
	if resp == nil {
		return 0
	}
	return resp.NextPage
}

func ptr[T any](v T) *T {
	return &v
}

// SearchOrgReposQuery builds the repository search used when listing fails.
func SearchOrgReposQuery(org string) string {
	return fmt.Sprintf("org:%s fork:true", strings.TrimSpace(org))
}

// SearchAuthorIssuesQuery builds the issue search for one author inside org.
func SearchAuthorIssuesQuery(org, author string) string {
	return fmt.Sprintf("author:%s org:%s", strings.TrimSpace(author), strings.TrimSpace(org))
}
