package contrib

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/devcoins/internal/cache"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"github.com/cam3ron2/devcoins/internal/scoring"
	"go.uber.org/zap"
)

// FetchLeaderboard returns per-user statistics inside tf, ranked by Dev Coins.
//
// The build runs in four passes: pull requests per repository, sampled
// commits for every pull request author, a full history scan reconciled
// against the sampled lines, and a profile backfill. Per-repository tallies
// are merged commutatively, so listing order does not affect totals.
func (s *Service) FetchLeaderboard(ctx context.Context, tf TimeFrame) ([]UserStats, Report, error) {
	tf, err := ParseTimeFrame(string(tf))
	if err != nil {
		return nil, Report{}, err
	}

	key := cache.LeaderboardKey(string(tf))
	if rows, ok := readCache[[]UserStats](ctx, s, key); ok {
		return rows, Report{Cached: true}, nil
	}

	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "leaderboard_"+string(tf))
	var report Report
	rows, err := s.buildLeaderboard(ctx, tf, &report)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}

	writeCache(ctx, s, key, rows, s.cfg.LeaderboardTTL)
	if s.observer != nil {
		s.observer.ObserveLeaderboard(tf, rows)
	}
	s.logger.Info(
		"leaderboard built",
		zap.String("timeframe", string(tf)),
		zap.Int("users", len(rows)),
		zap.Int("skipped", report.Total()),
		zap.Duration("duration", s.Now().Sub(b.started)),
	)
	return rows, report, nil
}

func (s *Service) buildLeaderboard(ctx context.Context, tf TimeFrame, report *Report) ([]UserStats, error) {
	now := s.Now()
	repos, err := s.repositories(ctx, report, false)
	if err != nil {
		return nil, err
	}
	targets := attributionTargets(repos, s.cfg.Org)

	pulls := make([]Tally, 0, len(targets))
	for _, target := range targets {
		tally, err := s.pullRequestTally(ctx, target, tf, now, report)
		if err != nil {
			return nil, err
		}
		pulls = append(pulls, tally)
	}
	tally := MergeTallies(pulls...)

	authors := tally.Usernames()
	samples := make([]Tally, 0, len(targets))
	for _, target := range targets {
		sample, err := s.commitSampleTally(ctx, target, authors, tf, now, report)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	tally = tally.Merge(MergeTallies(samples...))

	scan, err := s.directCommits(ctx, repos, tf, report)
	if err != nil {
		return nil, err
	}
	tally = reconcileDirectCommits(tally, scan.Authors, newDirectCommitUser, s.cfg.DirectCommitBonus)

	rows := tally.Users()
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record(report, s.backfillProfile(ctx, &rows[i]))
	}
	rankUsers(rows)
	return rows, nil
}

// pullRequestTally scores the pull requests of one repository created inside tf.
func (s *Service) pullRequestTally(
	ctx context.Context,
	target githubapi.RepositoryRef,
	tf TimeFrame,
	now time.Time,
	report *Report,
) (Tally, error) {
	listed, err := githubapi.NewPaginator[githubapi.PullRequest](func(ctx context.Context, page int) ([]githubapi.PullRequest, int, error) {
		return s.client.ListPullRequests(ctx, target.Owner, target.Name, page, listPageSize)
	}, s.pagePacer, githubapi.WithMaxPages(s.cfg.LeaderboardPRPages)).All(ctx)
	if err != nil {
		if isContextErr(err) {
			return Tally{}, err
		}
		record(report, skip[struct{}](s.logger, SkipPullRequestListing, err, zap.String("repo", target.Owner+"/"+target.Name)))
	}

	deltas := make([]UserStats, 0, len(listed))
	for _, pr := range listed {
		if err := ctx.Err(); err != nil {
			return Tally{}, err
		}
		if !tf.Includes(pr.CreatedAt, now) {
			continue
		}
		if !pr.HasAuthor() {
			report.skip(SkipUnattributed)
			continue
		}

		deltas = append(deltas, UserStats{Username: pr.Author, AvatarURL: pr.AuthorAvatar})
		detail := s.pullRequestDetail(ctx, target, pr.Number)
		if !record(report, detail) {
			continue
		}
		deltas = append(deltas, pullRequestDelta(mergePullRequest(pr, detail.Value)))
	}
	return TallyOf(deltas...), nil
}

func pullRequestDelta(pr githubapi.PullRequest) UserStats {
	delta := UserStats{
		Username:         pr.Author,
		TotalLinesOfCode: pr.Additions + pr.Deletions,
		DevCoins: scoring.ScorePullRequest(scoring.PullRequest{
			Additions: pr.Additions,
			Deletions: pr.Deletions,
			Merged:    pr.Merged,
		}),
	}
	switch StatusFor(pr) {
	case StatusOpen:
		delta.OpenPullRequests = 1
	case StatusMerged:
		delta.MergedPullRequests = 1
	}
	return delta
}

// commitSampleTally counts each author's commits in one repository and
// scores the changed lines of the most recent few.
func (s *Service) commitSampleTally(
	ctx context.Context,
	target githubapi.RepositoryRef,
	authors []string,
	tf TimeFrame,
	now time.Time,
	report *Report,
) (Tally, error) {
	since := tf.Since(now)
	deltas := make([]UserStats, 0, len(authors))
	for _, author := range authors {
		commits, _, err := s.client.ListCommits(ctx, target.Owner, target.Name, githubapi.CommitQuery{Author: author, Since: since}, 1, listPageSize)
		if err != nil {
			if isContextErr(err) {
				return Tally{}, err
			}
			record(report, skip[struct{}](
				s.logger,
				SkipCommitListing,
				err,
				zap.String("repo", target.Owner+"/"+target.Name),
				zap.String("author", author),
			))
			continue
		}

		delta := UserStats{Username: author, TotalCommits: len(commits)}
		for _, commit := range commits[:min(len(commits), s.cfg.CommitSampleSize)] {
			if err := ctx.Err(); err != nil {
				return Tally{}, err
			}
			detail := s.commitDetail(ctx, target, commit.SHA)
			if !record(report, detail) {
				continue
			}
			lines := detail.Value.Additions + detail.Value.Deletions
			delta.CommitLinesOfCode += lines
			delta.DevCoins += scoring.ScoreCommitLines(lines)
		}
		deltas = append(deltas, delta)
	}
	return TallyOf(deltas...), nil
}

func newDirectCommitUser(username string, totals DirectCommits) UserStats {
	return UserStats{
		Username:          username,
		TotalLinesOfCode:  totals.LinesOfCode,
		DevCoins:          scoring.ScoreCommitLines(totals.LinesOfCode),
		TotalCommits:      totals.Commits,
		CommitLinesOfCode: totals.LinesOfCode,
	}
}

// backfillProfile fills display name and avatar from the public profile.
// Email-keyed authors have no profile to look up.
func (s *Service) backfillProfile(ctx context.Context, row *UserStats) Outcome[struct{}] {
	if strings.Contains(row.Username, "@") {
		return Skipped[struct{}](SkipProfile, fmt.Errorf("author %q has no linked account", row.Username))
	}
	if err := s.pace(ctx); err != nil {
		return Skipped[struct{}](SkipProfile, err)
	}
	profile, err := s.client.GetUser(ctx, row.Username)
	if err != nil {
		return skip[struct{}](s.logger, SkipProfile, err, zap.String("user", row.Username))
	}
	row.Name = profile.Name
	if row.Name == "" {
		row.Name = profile.Login
	}
	if row.AvatarURL == "" {
		row.AvatarURL = profile.AvatarURL
	}
	return Ok(struct{}{})
}
