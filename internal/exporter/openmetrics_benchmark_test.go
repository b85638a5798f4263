package exporter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cam3ron2/devcoins/internal/contrib"
)

func BenchmarkOpenMetricsHandlerLeaderboard(b *testing.B) {
	now := time.Unix(1739836800, 0)
	snapshot := NewLeaderboardSnapshot("NST-SDC", func() time.Time { return now })

	const users = 2000
	for _, tf := range contrib.TimeFrames {
		rows := make([]contrib.UserStats, 0, users)
		for i := range users {
			rows = append(rows, contrib.UserStats{
				Username:         fmt.Sprintf("user-%d", i),
				DevCoins:         i,
				TotalLinesOfCode: i * 10,
				TotalCommits:     i % 50,
			})
		}
		snapshot.Update(tf, rows)
	}

	handler := NewOpenMetricsHandler(snapshot, NewRecorder(snapshot))
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Accept", "application/openmetrics-text")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("status code = %d, want 200", rec.Code)
		}
	}
}
