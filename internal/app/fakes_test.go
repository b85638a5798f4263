package app

import (
	"context"
	"sync"

	"github.com/cam3ron2/devcoins/internal/contrib"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/projects"
)

// stubGitHub answers every listing with an empty page. listErr, when set,
// is returned by every organization-level listing.
type stubGitHub struct {
	mu        sync.Mutex
	listErr   error
	rateLimit githubapi.RateLimit
	repos     []githubapi.Repository
	calls     map[string]int
}

func (s *stubGitHub) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

func (s *stubGitHub) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubGitHub) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *stubGitHub) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listErr
}

func (s *stubGitHub) ListOrgRepos(_ context.Context, _ string, _ int) ([]githubapi.Repository, int, error) {
	s.count("ListOrgRepos")
	if err := s.err(); err != nil {
		return nil, 0, err
	}
	return s.repos, 0, nil
}

func (s *stubGitHub) ListUserRepos(_ context.Context, _ int) ([]githubapi.Repository, int, error) {
	s.count("ListUserRepos")
	return nil, 0, nil
}

func (s *stubGitHub) SearchRepos(_ context.Context, _ string, _ int) ([]githubapi.Repository, int, error) {
	s.count("SearchRepos")
	return nil, 0, nil
}

func (s *stubGitHub) GetRepo(_ context.Context, owner, name string) (githubapi.RepositoryDetail, error) {
	s.count("GetRepo")
	return githubapi.RepositoryDetail{Repository: githubapi.Repository{Name: name, FullName: owner + "/" + name}}, nil
}

func (s *stubGitHub) ListPullRequests(_ context.Context, _, _ string, _, _ int) ([]githubapi.PullRequest, int, error) {
	s.count("ListPullRequests")
	return nil, 0, nil
}

func (s *stubGitHub) GetPullRequest(_ context.Context, _, _ string, number int) (githubapi.PullRequest, error) {
	s.count("GetPullRequest")
	return githubapi.PullRequest{Number: number}, nil
}

func (s *stubGitHub) ListCommits(
	_ context.Context,
	_, _ string,
	_ githubapi.CommitQuery,
	_, _ int,
) ([]githubapi.Commit, int, error) {
	s.count("ListCommits")
	return nil, 0, nil
}

func (s *stubGitHub) GetCommit(_ context.Context, _, _, sha string) (githubapi.CommitDetail, error) {
	s.count("GetCommit")
	return githubapi.CommitDetail{SHA: sha}, nil
}

func (s *stubGitHub) ListOrgMembers(_ context.Context, _, role string, _ int) ([]githubapi.Member, int, error) {
	s.count("ListOrgMembers")
	if role == "" {
		role = "all"
	}
	s.count("ListOrgMembers/" + role)
	if err := s.err(); err != nil {
		return nil, 0, err
	}
	return nil, 0, nil
}

func (s *stubGitHub) ListOutsideCollaborators(_ context.Context, _ string, _ int) ([]githubapi.Member, int, error) {
	s.count("ListOutsideCollaborators")
	return nil, 0, nil
}

func (s *stubGitHub) ListTeams(_ context.Context, _ string, _ int) ([]githubapi.Team, int, error) {
	s.count("ListTeams")
	return nil, 0, nil
}

func (s *stubGitHub) ListTeamMembers(_ context.Context, _, _ string, _ int) ([]githubapi.Member, int, error) {
	s.count("ListTeamMembers")
	return nil, 0, nil
}

func (s *stubGitHub) ListRepoAdmins(_ context.Context, _, _ string, _ int) ([]githubapi.Member, int, error) {
	s.count("ListRepoAdmins")
	return nil, 0, nil
}

func (s *stubGitHub) GetUser(_ context.Context, login string) (githubapi.UserProfile, error) {
	s.count("GetUser")
	return githubapi.UserProfile{Login: login}, nil
}

func (s *stubGitHub) SearchIssues(_ context.Context, _ string, _ int) ([]githubapi.IssueSearchItem, int, error) {
	s.count("SearchIssues")
	return nil, 0, nil
}

func (s *stubGitHub) RateLimit(_ context.Context) (githubapi.RateLimit, error) {
	s.count("RateLimit")
	if err := s.err(); err != nil {
		return githubapi.RateLimit{}, err
	}
	return s.rateLimit, nil
}

type fakeProjects struct {
	mu      sync.Mutex
	synced  [][]contrib.Repository
	syncErr error
	closed  bool
}

func (p *fakeProjects) List(_ context.Context) ([]projects.Project, error) {
	return []projects.Project{{ID: 1, GitHubID: 42, Name: "web", Status: projects.StatusOpen}}, nil
}

func (p *fakeProjects) Sync(_ context.Context, repos []contrib.Repository) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncErr != nil {
		return 0, p.syncErr
	}
	p.synced = append(p.synced, repos)
	return len(repos), nil
}

func (p *fakeProjects) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakeProjects) syncCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.synced)
}
