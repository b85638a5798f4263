package contrib

import (
	"testing"
	"time"

	perr "github.com/cam3ron2/devcoins/internal/errors"
	"github.com/cam3ron2/devcoins/internal/githubapi"
)

func TestParseTimeFrame(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw     string
		want    TimeFrame
		wantErr bool
	}{
		{raw: "", want: TimeFrameAll},
		{raw: "all", want: TimeFrameAll},
		{raw: " Month ", want: TimeFrameMonth},
		{raw: "WEEK", want: TimeFrameWeek},
		{raw: "year", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimeFrame(tc.raw)
			if tc.wantErr {
				if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
					t.Fatalf("ParseTimeFrame(%q) error = %v, want invalid argument", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeFrame(%q) unexpected error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseTimeFrame(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestTimeFrameSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 31, 9, 0, 0, 0, time.UTC)
	if got := TimeFrameAll.Since(now); !got.IsZero() {
		t.Fatalf("all.Since() = %v, want zero", got)
	}
	if got, want := TimeFrameWeek.Since(now), time.Date(2026, time.March, 24, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("week.Since() = %v, want %v", got, want)
	}
	// AddDate normalizes February 31st to March 3rd.
	if got, want := TimeFrameMonth.Since(now), time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("month.Since() = %v, want %v", got, want)
	}

	boundary := TimeFrameWeek.Since(now)
	if !TimeFrameWeek.Includes(boundary, now) {
		t.Fatalf("week.Includes(boundary) = false, want true")
	}
	if TimeFrameWeek.Includes(boundary.Add(-time.Second), now) {
		t.Fatalf("week.Includes(before boundary) = true, want false")
	}
	if !TimeFrameAll.Includes(time.Time{}, now) {
		t.Fatalf("all.Includes(zero) = false, want true")
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	mergedAt := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		pr   githubapi.PullRequest
		want PullRequestStatus
	}{
		{name: "open", pr: githubapi.PullRequest{State: "open"}, want: StatusOpen},
		{name: "closed", pr: githubapi.PullRequest{State: "closed"}, want: StatusClosed},
		{name: "merged_flag", pr: githubapi.PullRequest{State: "closed", Merged: true}, want: StatusMerged},
		{name: "merged_timestamp_wins", pr: githubapi.PullRequest{State: "open", MergedAt: mergedAt}, want: StatusMerged},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := StatusFor(tc.pr); got != tc.want {
				t.Fatalf("StatusFor(%+v) = %q, want %q", tc.pr, got, tc.want)
			}
		})
	}
}
