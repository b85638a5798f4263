package contrib

import (
	"context"
	"strings"

	"github.com/cam3ron2/devcoins/internal/githubapi"
	"go.uber.org/zap"
)

// FetchRepositories lists every repository owned by or forked into the
// organization, with fork parents resolved and the most recently updated
// pull requests attached.
//
// Rejected credentials and exhausted rate limits are returned as coded
// errors, as is a missing organization when no fallback finds anything.
// Other listing failures degrade to an empty list.
func (s *Service) FetchRepositories(ctx context.Context) ([]Repository, Report, error) {
	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "repositories")
	var report Report
	repos, err := s.repositories(ctx, &report, true)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}
	return repos, report, nil
}

func (s *Service) repositories(ctx context.Context, report *Report, withPulls bool) ([]Repository, error) {
	listed, err := s.listRepositories(ctx, report)
	if err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(listed))
	for _, repo := range listed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := s.normalizeRepository(repo)
		if repo.Fork {
			if parent := s.resolveParent(ctx, out); record(report, parent) {
				out.ParentRepo = parent.Value
			}
		}
		if withPulls {
			pulls, err := s.recentPullRequests(ctx, out, report)
			if err != nil {
				return nil, err
			}
			out.PullRequests = pulls
		}
		repos = append(repos, out)
	}
	return repos, nil
}

// listRepositories tries the organization listing, then the caller's own
// repositories filtered to the organization, then a scoped search.
func (s *Service) listRepositories(ctx context.Context, report *Report) ([]githubapi.Repository, error) {
	const op = "list repositories"
	org := s.cfg.Org

	repos, orgErr := githubapi.NewPaginator[githubapi.Repository](func(ctx context.Context, page int) ([]githubapi.Repository, int, error) {
		return s.client.ListOrgRepos(ctx, org, page)
	}, s.pagePacer).All(ctx)
	if orgErr != nil {
		if isContextErr(orgErr) {
			return nil, orgErr
		}
		if stopsListing(orgErr) {
			return nil, typedError(op, org, orgErr)
		}
		report.skip(SkipRepositoryListing)
		s.logger.Warn(
			"organization repository listing failed",
			zap.String("org", org),
			zap.Int("partial", len(repos)),
			zap.String("status", string(githubapi.StatusOf(orgErr))),
			zap.Error(orgErr),
		)
	}

	if orgErr != nil && len(repos) == 0 {
		owned, err := githubapi.NewPaginator[githubapi.Repository](s.client.ListUserRepos, s.pagePacer).All(ctx)
		if err != nil {
			if isContextErr(err) || stopsListing(err) {
				return nil, firstNonNil(typedError(op, org, err), err)
			}
			s.logger.Warn("caller repository listing failed", zap.Error(err))
		}
		repos = ownedBy(owned, org)
	}

	if len(repos) == 0 {
		found, err := githubapi.NewPaginator[githubapi.Repository](func(ctx context.Context, page int) ([]githubapi.Repository, int, error) {
			return s.client.SearchRepos(ctx, githubapi.SearchOrgReposQuery(org), page)
		}, s.pagePacer, githubapi.WithMaxPages(maxSearchPages)).All(ctx)
		if err != nil {
			if isContextErr(err) || stopsListing(err) {
				return nil, firstNonNil(typedError(op, org, err), err)
			}
			s.logger.Warn("repository search failed", zap.String("org", org), zap.Error(err))
		}
		repos = ownedBy(found, org)
	}

	if len(repos) == 0 && orgErr != nil {
		if typed := typedError(op, org, orgErr); typed != nil {
			return nil, typed
		}
	}
	return repos, nil
}

// stopsListing reports failures no fallback with the same credential can recover from.
func stopsListing(err error) bool {
	switch githubapi.StatusOf(err) {
	case githubapi.EndpointStatusUnauthorized, githubapi.EndpointStatusRateLimited:
		return true
	default:
		return false
	}
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func ownedBy(repos []githubapi.Repository, org string) []githubapi.Repository {
	out := make([]githubapi.Repository, 0, len(repos))
	for _, repo := range repos {
		if sameLogin(repo.Owner, org) {
			out = append(out, repo)
		}
	}
	return out
}

func (s *Service) normalizeRepository(repo githubapi.Repository) Repository {
	owner := strings.TrimSpace(repo.Owner)
	if owner == "" {
		owner = s.cfg.Org
	}
	updatedAt := repo.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.Now()
	}
	return Repository{
		ID:           repo.ID,
		Name:         repo.Name,
		Owner:        owner,
		Description:  repo.Description,
		URL:          repo.HTMLURL,
		Stars:        max(repo.Stars, 0),
		Language:     repo.Language,
		UpdatedAt:    updatedAt,
		OpenIssues:   max(repo.OpenIssues, 0),
		PullRequests: []PullRequest{},
		Fork:         repo.Fork,
	}
}

func (s *Service) resolveParent(ctx context.Context, repo Repository) Outcome[*ParentRepo] {
	if err := s.pace(ctx); err != nil {
		return Skipped[*ParentRepo](SkipForkParent, err)
	}
	detail, err := s.client.GetRepo(ctx, repo.Owner, repo.Name)
	if err != nil {
		return skip[*ParentRepo](s.logger, SkipForkParent, err, zap.String("repo", repo.Owner+"/"+repo.Name))
	}
	if detail.Parent == nil {
		return Ok[*ParentRepo](nil)
	}
	return Ok(&ParentRepo{Name: detail.Parent.Name, Owner: detail.Parent.Owner})
}

// recentPullRequests lists the most recently updated pull requests of repo
// and attaches diff totals. A failed detail lookup leaves zero diff totals.
func (s *Service) recentPullRequests(ctx context.Context, repo Repository, report *Report) ([]PullRequest, error) {
	listed, _, err := s.client.ListPullRequests(ctx, repo.Owner, repo.Name, 1, s.cfg.RecentPullRequests)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipPullRequestListing, err, zap.String("repo", repo.Owner+"/"+repo.Name)))
		return []PullRequest{}, nil
	}

	pulls := make([]PullRequest, 0, len(listed))
	for _, pr := range listed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		detail := s.pullRequestDetail(ctx, githubapi.RepositoryRef{Owner: repo.Owner, Name: repo.Name}, pr.Number)
		record(report, detail)
		pulls = append(pulls, s.toPullRequest(pr, detail.Value))
	}
	return pulls, nil
}

func (s *Service) pullRequestDetail(ctx context.Context, ref githubapi.RepositoryRef, number int) Outcome[githubapi.PullRequest] {
	if err := s.pace(ctx); err != nil {
		return Skipped[githubapi.PullRequest](SkipPullRequestDetail, err)
	}
	detail, err := s.client.GetPullRequest(ctx, ref.Owner, ref.Name, number)
	if err != nil {
		return skip[githubapi.PullRequest](
			s.logger,
			SkipPullRequestDetail,
			err,
			zap.String("repo", ref.Owner+"/"+ref.Name),
			zap.Int("number", number),
		)
	}
	return Ok(detail)
}

// mergePullRequest overlays detail fields onto a listing entry.
func mergePullRequest(listed, detail githubapi.PullRequest) githubapi.PullRequest {
	merged := listed
	merged.Additions = max(detail.Additions, 0)
	merged.Deletions = max(detail.Deletions, 0)
	merged.Merged = listed.Merged || detail.Merged
	if merged.MergedAt.IsZero() {
		merged.MergedAt = detail.MergedAt
	}
	if merged.Author == "" {
		merged.Author = detail.Author
		merged.AuthorAvatar = detail.AuthorAvatar
	}
	return merged
}

func (s *Service) toPullRequest(listed, detail githubapi.PullRequest) PullRequest {
	pr := mergePullRequest(listed, detail)
	createdAt := pr.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.Now()
	}
	return PullRequest{
		ID:        pr.ID,
		Title:     pr.Title,
		URL:       pr.HTMLURL,
		Author:    pr.Author,
		CreatedAt: createdAt,
		Status:    StatusFor(pr),
		Additions: pr.Additions,
		Deletions: pr.Deletions,
	}
}
