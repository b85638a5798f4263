package exporter

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/devcoins/internal/contrib"
)

// Leaderboard series names.
const (
	MetricUserDevCoins          = "devcoins_user_dev_coins"
	MetricUserLinesOfCode       = "devcoins_user_lines_of_code"
	MetricUserMergedPulls       = "devcoins_user_merged_pull_requests"
	MetricUserOpenPulls         = "devcoins_user_open_pull_requests"
	MetricUserCommits           = "devcoins_user_commits"
	MetricUserCommitLinesOfCode = "devcoins_user_commit_lines_of_code"
	MetricLeaderboardUsers      = "devcoins_leaderboard_users"
	MetricLeaderboardUpdated    = "devcoins_leaderboard_updated_timestamp_seconds"
)

// MetricPoint is one gauge sample.
type MetricPoint struct {
	Name      string
	Labels    map[string]string
	Value     float64
	UpdatedAt time.Time
}

// LeaderboardSnapshot holds the gauge series of the most recent leaderboard
// per timeframe. Each update replaces the timeframe's series wholesale, so
// users who drop out of a window stop being exported.
type LeaderboardSnapshot struct {
	org string
	now func() time.Time

	mu     sync.RWMutex
	series map[contrib.TimeFrame][]MetricPoint
}

// NewLeaderboardSnapshot creates an empty snapshot labelled with org.
func NewLeaderboardSnapshot(org string, now func() time.Time) *LeaderboardSnapshot {
	if now == nil {
		now = time.Now
	}
	return &LeaderboardSnapshot{
		org:    strings.TrimSpace(org),
		now:    now,
		series: make(map[contrib.TimeFrame][]MetricPoint),
	}
}

// Update replaces the series of tf with rows.
func (s *LeaderboardSnapshot) Update(tf contrib.TimeFrame, rows []contrib.UserStats) {
	if s == nil {
		return
	}
	now := s.now()
	points := make([]MetricPoint, 0, len(rows)*6+2)
	for _, row := range rows {
		labels := map[string]string{"org": s.org, "timeframe": string(tf), "user": row.Username}
		points = append(points,
			point(MetricUserDevCoins, labels, row.DevCoins, now),
			point(MetricUserLinesOfCode, labels, row.TotalLinesOfCode, now),
			point(MetricUserMergedPulls, labels, row.MergedPullRequests, now),
			point(MetricUserOpenPulls, labels, row.OpenPullRequests, now),
			point(MetricUserCommits, labels, row.TotalCommits, now),
			point(MetricUserCommitLinesOfCode, labels, row.CommitLinesOfCode, now),
		)
	}
	boardLabels := map[string]string{"org": s.org, "timeframe": string(tf)}
	points = append(points,
		point(MetricLeaderboardUsers, boardLabels, len(rows), now),
		MetricPoint{Name: MetricLeaderboardUpdated, Labels: maps.Clone(boardLabels), Value: float64(now.Unix()), UpdatedAt: now},
	)

	s.mu.Lock()
	s.series[tf] = points
	s.mu.Unlock()
}

// Snapshot returns a copy of every series, ordered by name then labels.
func (s *LeaderboardSnapshot) Snapshot() []MetricPoint {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]MetricPoint, 0)
	for _, points := range s.series {
		for _, p := range points {
			out = append(out, clonePoint(p))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b MetricPoint) int {
		return strings.Compare(seriesKey(a), seriesKey(b))
	})
	return out
}

func point(name string, labels map[string]string, value int, now time.Time) MetricPoint {
	return MetricPoint{Name: name, Labels: maps.Clone(labels), Value: float64(value), UpdatedAt: now}
}

func clonePoint(p MetricPoint) MetricPoint {
	return MetricPoint{
		Name:      p.Name,
		Labels:    maps.Clone(p.Labels),
		Value:     p.Value,
		UpdatedAt: p.UpdatedAt,
	}
}

func seriesKey(p MetricPoint) string {
	var builder strings.Builder
	builder.WriteString(p.Name)
	builder.WriteString("|")
	for _, key := range slices.Sorted(maps.Keys(p.Labels)) {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(p.Labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}
