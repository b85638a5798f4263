package contrib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/devcoins/internal/githubapi"
)

// fakeClient is an in-memory DataClient. Keys are "owner/name" for
// repositories, "owner/name#number" for pull requests and the SHA for commits.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	pageSize int

	orgRepos     []githubapi.Repository
	orgReposErr  error
	userRepos    []githubapi.Repository
	userReposErr error
	searchRepos  []githubapi.Repository
	searchErr    error

	repoDetails   map[string]githubapi.RepositoryDetail
	repoDetailErr map[string]error

	pulls         map[string][]githubapi.PullRequest
	pullListErr   map[string]error
	pullDetails   map[string]githubapi.PullRequest
	pullDetailErr map[string]error

	commits         map[string][]githubapi.Commit
	commitListErr   map[string]error
	commitDetails   map[string]githubapi.CommitDetail
	commitDetailErr map[string]error

	members     []githubapi.Member
	membersErr  error
	admins      []githubapi.Member
	outside     []githubapi.Member
	teams       []githubapi.Team
	teamMembers map[string][]githubapi.Member
	repoAdmins  map[string][]githubapi.Member

	profiles   map[string]githubapi.UserProfile
	issues     []githubapi.IssueSearchItem
	issuesErr  error
	lastSearch string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:           make(map[string]int),
		repoDetails:     make(map[string]githubapi.RepositoryDetail),
		repoDetailErr:   make(map[string]error),
		pulls:           make(map[string][]githubapi.PullRequest),
		pullListErr:     make(map[string]error),
		pullDetails:     make(map[string]githubapi.PullRequest),
		pullDetailErr:   make(map[string]error),
		commits:         make(map[string][]githubapi.Commit),
		commitListErr:   make(map[string]error),
		commitDetails:   make(map[string]githubapi.CommitDetail),
		commitDetailErr: make(map[string]error),
		teamMembers:     make(map[string][]githubapi.Member),
		repoAdmins:      make(map[string][]githubapi.Member),
		profiles:        make(map[string]githubapi.UserProfile),
	}
}

func (f *fakeClient) count(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call]++
}

func (f *fakeClient) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func pageOf[T any](items []T, page, size int) ([]T, int) {
	if size <= 0 {
		if page > 1 {
			return nil, 0
		}
		return items, 0
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil, 0
	}
	end := min(start+size, len(items))
	next := 0
	if end < len(items) {
		next = page + 1
	}
	return items[start:end], next
}

func (f *fakeClient) ListOrgRepos(_ context.Context, org string, page int) ([]githubapi.Repository, int, error) {
	f.count("ListOrgRepos")
	if f.orgReposErr != nil {
		return nil, 0, f.orgReposErr
	}
	items, next := pageOf(f.orgRepos, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) ListUserRepos(_ context.Context, page int) ([]githubapi.Repository, int, error) {
	f.count("ListUserRepos")
	if f.userReposErr != nil {
		return nil, 0, f.userReposErr
	}
	items, next := pageOf(f.userRepos, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) SearchRepos(_ context.Context, _ string, page int) ([]githubapi.Repository, int, error) {
	f.count("SearchRepos")
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	items, next := pageOf(f.searchRepos, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) GetRepo(_ context.Context, owner, name string) (githubapi.RepositoryDetail, error) {
	f.count("GetRepo")
	key := owner + "/" + name
	if err := f.repoDetailErr[key]; err != nil {
		return githubapi.RepositoryDetail{}, err
	}
	return f.repoDetails[key], nil
}

func (f *fakeClient) ListPullRequests(_ context.Context, owner, repo string, page, perPage int) ([]githubapi.PullRequest, int, error) {
	f.count("ListPullRequests:" + owner + "/" + repo)
	key := owner + "/" + repo
	if err := f.pullListErr[key]; err != nil {
		return nil, 0, err
	}
	items, next := pageOf(f.pulls[key], page, perPage)
	return items, next, nil
}

func (f *fakeClient) GetPullRequest(_ context.Context, owner, repo string, number int) (githubapi.PullRequest, error) {
	f.count("GetPullRequest")
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	if err := f.pullDetailErr[key]; err != nil {
		return githubapi.PullRequest{}, err
	}
	detail, ok := f.pullDetails[key]
	if !ok {
		return githubapi.PullRequest{}, notFound("get pull request")
	}
	return detail, nil
}

func (f *fakeClient) ListCommits(
	_ context.Context,
	owner, repo string,
	query githubapi.CommitQuery,
	page, perPage int,
) ([]githubapi.Commit, int, error) {
	f.count("ListCommits:" + owner + "/" + repo)
	key := owner + "/" + repo
	if err := f.commitListErr[key]; err != nil {
		return nil, 0, err
	}
	var filtered []githubapi.Commit
	for _, commit := range f.commits[key] {
		if query.Author != "" && !strings.EqualFold(commit.AuthorLogin, query.Author) {
			continue
		}
		if !query.Since.IsZero() && commit.AuthoredAt.Before(query.Since) {
			continue
		}
		filtered = append(filtered, commit)
	}
	items, next := pageOf(filtered, page, perPage)
	return items, next, nil
}

func (f *fakeClient) GetCommit(_ context.Context, _, _, sha string) (githubapi.CommitDetail, error) {
	f.count("GetCommit")
	if err := f.commitDetailErr[sha]; err != nil {
		return githubapi.CommitDetail{}, err
	}
	detail := f.commitDetails[sha]
	detail.SHA = sha
	return detail, nil
}

func (f *fakeClient) ListOrgMembers(_ context.Context, _, role string, page int) ([]githubapi.Member, int, error) {
	if role == "admin" {
		f.count("ListOrgAdmins")
		items, next := pageOf(f.admins, page, f.pageSize)
		return items, next, nil
	}
	f.count("ListOrgMembers")
	if f.membersErr != nil {
		return nil, 0, f.membersErr
	}
	items, next := pageOf(f.members, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) ListOutsideCollaborators(_ context.Context, _ string, page int) ([]githubapi.Member, int, error) {
	f.count("ListOutsideCollaborators")
	items, next := pageOf(f.outside, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) ListTeams(_ context.Context, _ string, page int) ([]githubapi.Team, int, error) {
	f.count("ListTeams")
	items, next := pageOf(f.teams, page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) ListTeamMembers(_ context.Context, _, teamSlug string, page int) ([]githubapi.Member, int, error) {
	f.count("ListTeamMembers")
	items, next := pageOf(f.teamMembers[teamSlug], page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) ListRepoAdmins(_ context.Context, owner, repo string, page int) ([]githubapi.Member, int, error) {
	f.count("ListRepoAdmins")
	items, next := pageOf(f.repoAdmins[owner+"/"+repo], page, f.pageSize)
	return items, next, nil
}

func (f *fakeClient) GetUser(_ context.Context, login string) (githubapi.UserProfile, error) {
	f.count("GetUser")
	for key, profile := range f.profiles {
		if strings.EqualFold(key, login) {
			return profile, nil
		}
	}
	return githubapi.UserProfile{}, notFound("get user")
}

func (f *fakeClient) SearchIssues(_ context.Context, query string, page int) ([]githubapi.IssueSearchItem, int, error) {
	f.count("SearchIssues")
	f.mu.Lock()
	f.lastSearch = query
	f.mu.Unlock()
	if f.issuesErr != nil {
		return nil, 0, f.issuesErr
	}
	items, next := pageOf(f.issues, page, f.pageSize)
	return items, next, nil
}

func apiError(op string, status githubapi.EndpointStatus, code int) error {
	return &githubapi.APIError{Op: op, Status: status, StatusCode: code, Err: errors.New(http.StatusText(code))}
}

func notFound(op string) error {
	return apiError(op, githubapi.EndpointStatusNotFound, http.StatusNotFound)
}

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestService(client *fakeClient, opts ...Option) *Service {
	svc := NewService(client, nil, Config{
		Org:                   "NST-SDC",
		HasCredentials:        true,
		CommitSampleSize:      5,
		UserCommitDetailLimit: 20,
	}, opts...)
	svc.Now = func() time.Time { return testNow }
	return svc
}

func orgRepo(id int64, name string) githubapi.Repository {
	return githubapi.Repository{
		ID:        id,
		Name:      name,
		FullName:  "NST-SDC/" + name,
		Owner:     "NST-SDC",
		HTMLURL:   "https://github.com/NST-SDC/" + name,
		UpdatedAt: testNow.Add(-time.Hour),
	}
}

func listedPR(number int, author string, state string, createdAt time.Time) githubapi.PullRequest {
	return githubapi.PullRequest{
		ID:        int64(1000 + number),
		Number:    number,
		Title:     fmt.Sprintf("change %d", number),
		State:     state,
		Author:    author,
		CreatedAt: createdAt,
	}
}

func prDetail(listed githubapi.PullRequest, additions, deletions int, merged bool) githubapi.PullRequest {
	detail := listed
	detail.Additions = additions
	detail.Deletions = deletions
	detail.Merged = merged
	if merged {
		detail.MergedAt = listed.CreatedAt.Add(time.Hour)
		detail.State = "closed"
	}
	return detail
}

type recordingObserver struct {
	mu          sync.Mutex
	builds      []string
	reports     []Report
	leaderboard map[TimeFrame]int
}

func (o *recordingObserver) ObserveBuild(operation string, report Report, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builds = append(o.builds, operation)
	o.reports = append(o.reports, report)
}

func (o *recordingObserver) ObserveLeaderboard(timeFrame TimeFrame, rows []UserStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.leaderboard == nil {
		o.leaderboard = make(map[TimeFrame]int)
	}
	o.leaderboard[timeFrame] = len(rows)
}
