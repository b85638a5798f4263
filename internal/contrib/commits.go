package contrib

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/cam3ron2/devcoins/internal/githubapi"
	"go.uber.org/zap"
)

// DirectCommitScan is the result of scanning every repository's history.
// Authors is keyed by every author found, not only by Admins.
type DirectCommitScan struct {
	Admins  []string                 `json:"admins"`
	Authors map[string]DirectCommits `json:"authors"`
}

// FetchRepositoryCommitHistory walks the full commit history of owner/repo
// inside tf and totals commits and changed lines per author.
func (s *Service) FetchRepositoryCommitHistory(
	ctx context.Context,
	owner, repo string,
	tf TimeFrame,
) (map[string]AuthorCommits, Report, error) {
	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "commit_history")
	var report Report
	tally, err := s.commitHistory(ctx, githubapi.RepositoryRef{Owner: owner, Name: repo}, tf, &report)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}
	return tally.Map(), report, nil
}

// FetchAdminDirectCommits scans the history of every repository, attributed
// through fork parents, to find work committed without pull requests.
func (s *Service) FetchAdminDirectCommits(ctx context.Context, tf TimeFrame) (DirectCommitScan, Report, error) {
	if err := s.requireClient(); err != nil {
		return DirectCommitScan{}, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "direct_commits")
	var report Report
	scan, err := s.adminDirectCommits(ctx, tf, &report)
	b.finish(report, err)
	return scan, report, err
}

func (s *Service) adminDirectCommits(ctx context.Context, tf TimeFrame, report *Report) (DirectCommitScan, error) {
	repos, err := s.repositories(ctx, report, false)
	if err != nil {
		return DirectCommitScan{}, err
	}
	return s.directCommits(ctx, repos, tf, report)
}

func (s *Service) directCommits(ctx context.Context, repos []Repository, tf TimeFrame, report *Report) (DirectCommitScan, error) {
	admins, err := s.adminSet(ctx, repos, report)
	if err != nil {
		return DirectCommitScan{}, err
	}

	var combined CommitTally
	for _, target := range attributionTargets(repos, s.cfg.Org) {
		tally, err := s.commitHistory(ctx, target, tf, report)
		if err != nil {
			return DirectCommitScan{}, err
		}
		combined = combined.Merge(tally)
	}

	authors := make(map[string]DirectCommits, combined.Len())
	for author, totals := range combined.Map() {
		authors[author] = DirectCommits{Commits: totals.Commits, LinesOfCode: totals.Lines()}
	}
	s.logger.Info(
		"direct commit scan completed",
		zap.Int("admins", len(admins)),
		zap.Int("authors", len(authors)),
		zap.String("timeframe", string(tf)),
	)
	return DirectCommitScan{Admins: admins, Authors: authors}, nil
}

// adminSet returns organization admins plus anyone holding admin permission
// on at least one repository, sorted.
func (s *Service) adminSet(ctx context.Context, repos []Repository, report *Report) ([]string, error) {
	admins := make(map[string]struct{})

	orgAdmins, err := githubapi.NewPaginator[githubapi.Member](func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
		return s.client.ListOrgMembers(ctx, s.cfg.Org, "admin", page)
	}, s.pagePacer).All(ctx)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipAdminListing, err, zap.String("org", s.cfg.Org)))
	}
	for _, member := range orgAdmins {
		admins[member.Login] = struct{}{}
	}

	for _, repo := range repos {
		repoAdmins, err := githubapi.NewPaginator[githubapi.Member](func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
			return s.client.ListRepoAdmins(ctx, repo.Owner, repo.Name, page)
		}, s.pagePacer).All(ctx)
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			record(report, skip[struct{}](s.logger, SkipCollaborators, err, zap.String("repo", repo.Owner+"/"+repo.Name)))
		}
		for _, member := range repoAdmins {
			admins[member.Login] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(admins)), nil
}

func (s *Service) commitHistory(ctx context.Context, ref githubapi.RepositoryRef, tf TimeFrame, report *Report) (CommitTally, error) {
	query := githubapi.CommitQuery{Since: tf.Since(s.Now())}
	pages := githubapi.NewPaginator[githubapi.Commit](func(ctx context.Context, page int) ([]githubapi.Commit, int, error) {
		return s.client.ListCommits(ctx, ref.Owner, ref.Name, query, page, listPageSize)
	}, s.pagePacer)

	authors := make(map[string]AuthorCommits)
	for commits, err := range pages.Pages(ctx) {
		if err != nil {
			if isContextErr(err) {
				return CommitTally{}, err
			}
			record(report, skip[struct{}](s.logger, SkipCommitListing, err, zap.String("repo", ref.Owner+"/"+ref.Name)))
			break
		}
		for _, commit := range commits {
			if err := ctx.Err(); err != nil {
				return CommitTally{}, err
			}
			author := resolveCommitAuthor(commit)
			if author == "" {
				report.skip(SkipUnattributed)
				continue
			}
			detail := s.commitDetail(ctx, ref, commit.SHA)
			if !record(report, detail) {
				continue
			}
			authors[author] = authors[author].Add(AuthorCommits{
				Commits:   1,
				Additions: detail.Value.Additions,
				Deletions: detail.Value.Deletions,
			})
		}
	}
	return commitTallyOf(authors), nil
}

func (s *Service) commitDetail(ctx context.Context, ref githubapi.RepositoryRef, sha string) Outcome[githubapi.CommitDetail] {
	if err := s.pace(ctx); err != nil {
		return Skipped[githubapi.CommitDetail](SkipCommitDetail, err)
	}
	detail, err := s.client.GetCommit(ctx, ref.Owner, ref.Name, sha)
	if err != nil {
		return skip[githubapi.CommitDetail](
			s.logger,
			SkipCommitDetail,
			err,
			zap.String("repo", ref.Owner+"/"+ref.Name),
			zap.String("sha", sha),
		)
	}
	detail.Additions = max(detail.Additions, 0)
	detail.Deletions = max(detail.Deletions, 0)
	return Ok(detail)
}

// attributionTargets returns the distinct repositories contributions are
// credited to, in listing order. Forks of the same parent collapse into one.
func attributionTargets(repos []Repository, org string) []githubapi.RepositoryRef {
	seen := make(map[string]struct{}, len(repos))
	targets := make([]githubapi.RepositoryRef, 0, len(repos))
	for _, repo := range repos {
		target := repo.Target(org)
		key := strings.ToLower(target.Owner + "/" + target.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}

// resolveCommitAuthor prefers the linked account, then a login recovered
// from a noreply address, then the raw author email. Empty means the
// commit cannot be attributed.
func resolveCommitAuthor(commit githubapi.Commit) string {
	if login := strings.TrimSpace(commit.AuthorLogin); login != "" {
		return login
	}
	if login := loginFromNoReplyEmail(commit.AuthorEmail); login != "" {
		return login
	}
	return strings.TrimSpace(commit.AuthorEmail)
}

func loginFromNoReplyEmail(email string) string {
	const suffix = "@users.noreply.github.com"

	trimmed := strings.TrimSpace(email)
	if !strings.HasSuffix(strings.ToLower(trimmed), suffix) {
		return ""
	}
	local := strings.TrimSpace(trimmed[:len(trimmed)-len(suffix)])
	if _, login, ok := strings.Cut(local, "+"); ok {
		local = login
	}
	return strings.TrimSpace(local)
}
