package contrib

import (
	"context"
	"slices"
	"strings"

	"github.com/cam3ron2/devcoins/internal/cache"
	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
	"go.uber.org/zap"
)

// FetchOrganizationMembers builds the member directory: organization
// members, outside collaborators and team members, with roles, public
// profiles and all-time contribution totals, ranked by Dev Coins.
//
// A missing credential fails before any request. After that only a failed
// first member listing is fatal; every other failure leaves a gap.
func (s *Service) FetchOrganizationMembers(ctx context.Context) ([]GithubMember, Report, error) {
	const op = "fetch organization members"
	if !s.cfg.HasCredentials {
		return nil, Report{}, perr.WithOp(perr.Configurationf("github token is not configured"), op)
	}
	if strings.TrimSpace(s.cfg.Org) == "" {
		return nil, Report{}, perr.WithOp(perr.Configurationf("github organization is not configured"), op)
	}

	if rows, ok := readCache[[]GithubMember](ctx, s, cache.KeyOrganizationMembers); ok {
		return rows, Report{Cached: true}, nil
	}

	if err := s.requireClient(); err != nil {
		return nil, Report{}, err
	}
	ctx, b := s.startBuild(ctx, "members")
	var report Report
	rows, err := s.buildDirectory(ctx, &report)
	b.finish(report, err)
	if err != nil {
		return nil, report, err
	}

	writeCache(ctx, s, cache.KeyOrganizationMembers, rows, s.cfg.MembersTTL)
	s.logger.Info(
		"member directory built",
		zap.Int("members", len(rows)),
		zap.Int("skipped", report.Total()),
		zap.Duration("duration", s.Now().Sub(b.started)),
	)
	return rows, report, nil
}

func (s *Service) buildDirectory(ctx context.Context, report *Report) ([]GithubMember, error) {
	org := s.cfg.Org
	dir := newDirectory()

	members, err := s.listMembers(ctx, func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
		return s.client.ListOrgMembers(ctx, org, "", page)
	})
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		if len(members) == 0 {
			if typed := typedError("list organization members", org, err); typed != nil {
				return nil, typed
			}
		}
		record(report, skip[struct{}](s.logger, SkipMemberListing, err, zap.String("org", org)))
	}
	for _, member := range members {
		dir.add(member, RoleMember)
	}

	outside, err := s.listMembers(ctx, func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
		return s.client.ListOutsideCollaborators(ctx, org, page)
	})
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipCollaborators, err, zap.String("org", org)))
	}
	for _, member := range outside {
		dir.add(member, RoleOutside)
	}

	teams, err := githubapi.NewPaginator[githubapi.Team](func(ctx context.Context, page int) ([]githubapi.Team, int, error) {
		return s.client.ListTeams(ctx, org, page)
	}, s.pagePacer).All(ctx)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipTeamListing, err, zap.String("org", org)))
	}
	for _, team := range teams {
		teamMembers, err := s.listMembers(ctx, func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
			return s.client.ListTeamMembers(ctx, org, team.Slug, page)
		})
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			record(report, skip[struct{}](s.logger, SkipTeamMembers, err, zap.String("team", team.Slug)))
		}
		for _, member := range teamMembers {
			dir.join(member, team.Name)
		}
	}

	admins, err := s.listMembers(ctx, func(ctx context.Context, page int) ([]githubapi.Member, int, error) {
		return s.client.ListOrgMembers(ctx, org, "admin", page)
	})
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipAdminListing, err, zap.String("org", org)))
	}
	for _, admin := range admins {
		dir.promote(admin.Login)
	}

	rows := dir.rows()
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record(report, s.fillProfile(ctx, &rows[i]))
	}

	stats, statsReport, err := s.FetchLeaderboard(ctx, TimeFrameAll)
	*report = report.Merge(statsReport)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		record(report, skip[struct{}](s.logger, SkipContributionMerge, err))
	}
	mergeContributions(rows, stats)

	rankMembers(rows)
	return rows, nil
}

func (s *Service) listMembers(ctx context.Context, fetch githubapi.PageFunc[githubapi.Member]) ([]githubapi.Member, error) {
	return githubapi.NewPaginator(fetch, s.pagePacer).All(ctx)
}

func (s *Service) fillProfile(ctx context.Context, member *GithubMember) Outcome[struct{}] {
	if err := s.pace(ctx); err != nil {
		return Skipped[struct{}](SkipProfile, err)
	}
	profile, err := s.client.GetUser(ctx, member.Username)
	if err != nil {
		return skip[struct{}](s.logger, SkipProfile, err, zap.String("user", member.Username))
	}
	member.Name = profile.Name
	if member.Name == "" {
		member.Name = profile.Login
	}
	if member.AvatarURL == "" {
		member.AvatarURL = profile.AvatarURL
	}
	member.Bio = profile.Bio
	member.Email = profile.Email
	member.Company = profile.Company
	member.Location = profile.Location
	member.Blog = profile.Blog
	member.TwitterUsername = profile.TwitterUsername
	return Ok(struct{}{})
}

// mergeContributions copies leaderboard totals onto members matched by
// case-insensitive username.
func mergeContributions(members []GithubMember, stats []UserStats) {
	byLogin := make(map[string]UserStats, len(stats))
	for _, row := range stats {
		byLogin[strings.ToLower(row.Username)] = row
	}
	for i := range members {
		row, ok := byLogin[strings.ToLower(members[i].Username)]
		if !ok {
			continue
		}
		members[i].Contributions = ContributionsOf(row)
		members[i].DevCoins = row.DevCoins
	}
}

// directory assembles members from several listings. Each login appears
// once; team names are kept unique in first-seen order.
type directory struct {
	order   []string
	members map[string]*GithubMember
}

func newDirectory() *directory {
	return &directory{members: make(map[string]*GithubMember)}
}

func (d *directory) add(member githubapi.Member, role Role) *GithubMember {
	if existing, ok := d.members[member.Login]; ok {
		return existing
	}
	row := &GithubMember{
		ID:        member.ID,
		Username:  member.Login,
		AvatarURL: member.AvatarURL,
		TeamNames: []string{},
		Role:      role,
	}
	d.members[member.Login] = row
	d.order = append(d.order, member.Login)
	return row
}

func (d *directory) join(member githubapi.Member, team string) {
	row := d.add(member, RoleMember)
	if !slices.Contains(row.TeamNames, team) {
		row.TeamNames = append(row.TeamNames, team)
	}
}

func (d *directory) promote(login string) {
	if row, ok := d.members[login]; ok {
		row.Role = RoleAdmin
	}
}

func (d *directory) rows() []GithubMember {
	out := make([]GithubMember, 0, len(d.order))
	for _, login := range d.order {
		out = append(out, *d.members[login])
	}
	return out
}
