package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/tinoosan/bookkeeper/internal/errs"
)

func TestLabel(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 23, 30, 0, 0, time.UTC)
	cases := []struct {
		iv   PeriodInterval
		want string
	}{
		{IntervalYear, "2024"},
		{IntervalQuarter, "2024-1"},
		{IntervalMonth, "2024-03"},
		{IntervalWeek, "2024-10"},
		{IntervalDay, "2024-03-05"},
	}
	for _, tc := range cases {
		t.Run(string(tc.iv), func(t *testing.T) {
			if got := tc.iv.Label(ts); got != tc.want {
				t.Fatalf("Label(%s) = %q, want %q", tc.iv, got, tc.want)
			}
		})
	}
}

func TestLabel_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	ts := time.Date(2024, time.January, 1, 5, 0, 0, 0, loc) // 2023-12-31 19:00 UTC
	if got := IntervalYear.Label(ts); got != "2023" {
		t.Fatalf("expected 2023, got %s", got)
	}
	if got := IntervalQuarter.Label(ts); got != "2023-4" {
		t.Fatalf("expected 2023-4, got %s", got)
	}
}

func TestLabel_WeekBoundaries(t *testing.T) {
	cases := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "2023-01"},
		{time.Date(2023, 1, 7, 0, 0, 0, 0, time.UTC), "2023-01"},
		{time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC), "2023-02"},
		{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), "2023-53"},
	}
	for _, tc := range cases {
		if got := IntervalWeek.Label(tc.day); got != tc.want {
			t.Fatalf("week label for %s = %s, want %s", tc.day.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestLabels_SortChronologically(t *testing.T) {
	a := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	for _, iv := range Intervals() {
		if iv.Label(a) > iv.Label(b) {
			t.Fatalf("%s labels out of order: %s > %s", iv, iv.Label(a), iv.Label(b))
		}
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("yyyy-mm")
	if err != nil || iv != IntervalMonth {
		t.Fatalf("expected YYYY-MM, got %q err=%v", iv, err)
	}
	if _, err := ParseInterval("fortnight"); !errors.Is(err, errs.ErrUnknownInterval) {
		t.Fatalf("expected ErrUnknownInterval, got %v", err)
	}
	for _, iv := range Intervals() {
		if iv.Column() == "" {
			t.Fatalf("missing column for %s", iv)
		}
	}
}
