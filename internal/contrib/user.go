package contrib

import (
	"cmp"
	"context"
	"path"
	"slices"
	"strconv"
	"strings"

	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/scoring"
	"go.uber.org/zap"
)

// FetchUserCommits lists the commits username authored inside tf across all
// organization repositories, newest first. Detail lookups are capped in
// total, so busy users get their earliest-listed commits only.
func (s *Service) FetchUserCommits(ctx context.Context, username string, tf TimeFrame) ([]CommitRecord, Report, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, Report{}, perr.InvalidArgf("username is required")
	}
	tf, err := ParseTimeFrame(string(tf))
	if err != nil {
		return nil, Report{}, err
	}

	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "user_commits")
	var report Report
	commits, err := s.userCommits(ctx, username, tf, &report)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}
	return commits, report, nil
}

func (s *Service) userCommits(ctx context.Context, username string, tf TimeFrame, report *Report) ([]CommitRecord, error) {
	repos, err := s.repositories(ctx, report, false)
	if err != nil {
		return nil, err
	}

	query := githubapi.CommitQuery{Author: username, Since: tf.Since(s.Now())}
	records := make([]CommitRecord, 0)
	lookups := 0
	for _, target := range attributionTargets(repos, s.cfg.Org) {
		if lookups >= s.cfg.UserCommitDetailLimit {
			break
		}
		listed, _, err := s.client.ListCommits(ctx, target.Owner, target.Name, query, 1, s.cfg.UserCommitsPerRepo)
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			record(report, skip[struct{}](
				s.logger,
				SkipCommitListing,
				err,
				zap.String("repo", target.Owner+"/"+target.Name),
				zap.String("author", username),
			))
			continue
		}

		for _, commit := range listed {
			if lookups >= s.cfg.UserCommitDetailLimit {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			lookups++
			detail := s.commitDetail(ctx, target, commit.SHA)
			if !record(report, detail) {
				continue
			}
			date := commit.AuthoredAt
			if date.IsZero() {
				date = s.Now()
			}
			records = append(records, CommitRecord{
				Author:     username,
				SHA:        commit.SHA,
				Message:    commit.Message,
				Date:       date,
				URL:        commit.HTMLURL,
				Additions:  detail.Value.Additions,
				Deletions:  detail.Value.Deletions,
				Repository: target.Name,
			})
		}
	}

	slices.SortStableFunc(records, func(a, b CommitRecord) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.SHA, b.SHA)
	})
	return records, nil
}

// FetchUserContributions returns the scored issues, pull requests and
// commits of username inside the organization, newest first.
func (s *Service) FetchUserContributions(ctx context.Context, username string) ([]UserContribution, Report, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, Report{}, perr.InvalidArgf("username is required")
	}

	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "user_contributions")
	var report Report
	contributions, err := s.userContributions(ctx, username, &report)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}
	return contributions, report, nil
}

func (s *Service) userContributions(ctx context.Context, username string, report *Report) ([]UserContribution, error) {
	const op = "search contributions"
	items, err := githubapi.NewPaginator[githubapi.IssueSearchItem](func(ctx context.Context, page int) ([]githubapi.IssueSearchItem, int, error) {
		return s.client.SearchIssues(ctx, githubapi.SearchAuthorIssuesQuery(s.cfg.Org, username), page)
	}, s.pagePacer, githubapi.WithMaxPages(maxSearchPages)).All(ctx)
	if err != nil {
		if isContextErr(err) || (len(items) == 0 && stopsListing(err)) {
			return nil, firstNonNil(typedError(op, s.cfg.Org, err), err)
		}
		record(report, skip[struct{}](s.logger, SkipContributionListing, err, zap.String("user", username)))
	}

	contributions := make([]UserContribution, 0, len(items))
	for _, item := range items {
		contributions = append(contributions, issueContribution(item))
	}

	commits, err := s.userCommits(ctx, username, TimeFrameAll, report)
	if err != nil {
		return nil, err
	}
	for _, commit := range commits {
		contributions = append(contributions, commitContribution(commit))
	}

	slices.SortStableFunc(contributions, func(a, b UserContribution) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return contributions, nil
}

func issueContribution(item githubapi.IssueSearchItem) UserContribution {
	kind := ContributionIssue
	status := item.State
	if item.IsPullRequest {
		kind = ContributionPR
		if item.Merged {
			status = string(StatusMerged)
		}
	}
	return UserContribution{
		ID:         strconv.FormatInt(item.ID, 10),
		Type:       kind,
		Title:      item.Title,
		URL:        item.HTMLURL,
		CreatedAt:  item.CreatedAt,
		Repository: repositoryName(item.RepositoryURL),
		Status:     status,
		Points: scoring.ScoreIssueOrPR(scoring.Item{
			IsPullRequest: item.IsPullRequest,
			Merged:        item.Merged,
			Labels:        item.Labels,
		}),
	}
}

func commitContribution(commit CommitRecord) UserContribution {
	title, _, _ := strings.Cut(commit.Message, "\n")
	return UserContribution{
		ID:          commit.SHA,
		Type:        ContributionCommit,
		Title:       strings.TrimSpace(title),
		Description: commit.Message,
		URL:         commit.URL,
		CreatedAt:   commit.Date,
		Repository:  commit.Repository,
		Status:      "committed",
		Points:      scoring.ScoreCommitLines(commit.Additions + commit.Deletions),
	}
}

// repositoryName returns the last path segment of a repository API URL.
func repositoryName(apiURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(apiURL), "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}
