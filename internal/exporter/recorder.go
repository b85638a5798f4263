package exporter

import (
	"time"

	"github.com/cam3ron2/devcoins/internal/contrib"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts aggregation builds, skipped items and cache lookups, and
// forwards finished leaderboards to a snapshot. It implements
// contrib.Observer and prometheus.Collector.
type Recorder struct {
	snapshot *LeaderboardSnapshot

	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	skipped       *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// NewRecorder creates a Recorder. A nil snapshot drops leaderboard rows.
func NewRecorder(snapshot *LeaderboardSnapshot) *Recorder {
	return &Recorder{
		snapshot: snapshot,
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcoins_builds_total",
			Help: "Aggregation builds by operation and result.",
		}, []string{"operation", "result"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devcoins_build_duration_seconds",
			Help:    "Wall time of aggregation builds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"operation"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcoins_skipped_items_total",
			Help: "Items left out of a build after a provider failure.",
		}, []string{"operation", "reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcoins_cache_lookups_total",
			Help: "Cached aggregate lookups by result.",
		}, []string{"operation", "result"}),
	}
}

// ObserveBuild records one finished build.
func (r *Recorder) ObserveBuild(operation string, report contrib.Report, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	} else if report.Total() > 0 {
		result = "partial"
	}
	r.builds.WithLabelValues(operation, result).Inc()
	r.buildDuration.WithLabelValues(operation).Observe(duration.Seconds())
	for _, reason := range report.Reasons() {
		r.skipped.WithLabelValues(operation, string(reason)).Add(float64(report.Count(reason)))
	}
}

// ObserveLeaderboard forwards rows to the snapshot.
func (r *Recorder) ObserveLeaderboard(tf contrib.TimeFrame, rows []contrib.UserStats) {
	if r == nil {
		return
	}
	r.snapshot.Update(tf, rows)
}

// ObserveCacheLookup records whether operation was served from cache.
func (r *Recorder) ObserveCacheLookup(operation string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(operation, result).Inc()
}

// Describe implements prometheus.Collector.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.builds.Describe(ch)
	r.buildDuration.Describe(ch)
	r.skipped.Describe(ch)
	r.cacheLookups.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.builds.Collect(ch)
	r.buildDuration.Collect(ch)
	r.skipped.Collect(ch)
	r.cacheLookups.Collect(ch)
}

var _ contrib.Observer = (*Recorder)(nil)
