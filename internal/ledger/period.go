package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinoosan/bookkeeper/internal/errs"
)

// PeriodInterval is the granularity a trial balance bucket covers. The values double
// as the to_char format strings that produce the bucket labels.
type PeriodInterval string

const (
	IntervalYear    PeriodInterval = "YYYY"
	IntervalQuarter PeriodInterval = "YYYY-Q"
	IntervalMonth   PeriodInterval = "YYYY-MM"
	IntervalWeek    PeriodInterval = "YYYY-WW"
	IntervalDay     PeriodInterval = "YYYY-MM-DD"
)

var intervals = []PeriodInterval{IntervalYear, IntervalQuarter, IntervalMonth, IntervalWeek, IntervalDay}

// Intervals returns every supported interval, coarsest first.
func Intervals() []PeriodInterval {
	out := make([]PeriodInterval, len(intervals))
	copy(out, intervals)
	return out
}

// ParseInterval accepts an interval format, case-insensitively.
func ParseInterval(s string) (PeriodInterval, error) {
	up := PeriodInterval(strings.ToUpper(strings.TrimSpace(s)))
	for _, iv := range intervals {
		if iv == up {
			return iv, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnknownInterval, s)
}

// Label formats t (in UTC) as the bucket label for the interval.
// Labels of one interval sort lexically in chronological order.
//
// Weeks follow the to_char WW rule: week 1 starts on January 1st and every
// week is seven days, so the last week of a year may be short.
func (iv PeriodInterval) Label(t time.Time) string {
	t = t.UTC()
	switch iv {
	case IntervalYear:
		return fmt.Sprintf("%04d", t.Year())
	case IntervalQuarter:
		return fmt.Sprintf("%04d-%d", t.Year(), (int(t.Month())-1)/3+1)
	case IntervalMonth:
		return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
	case IntervalWeek:
		return fmt.Sprintf("%04d-%02d", t.Year(), (t.YearDay()-1)/7+1)
	case IntervalDay:
		return t.Format("2006-01-02")
	}
	return ""
}

// Valid reports whether iv is one of the supported intervals.
func (iv PeriodInterval) Valid() bool {
	_, err := ParseInterval(string(iv))
	return err == nil
}

// Column is the storage column holding the interval's label for each entry.
func (iv PeriodInterval) Column() string {
	switch iv {
	case IntervalYear:
		return "period_year"
	case IntervalQuarter:
		return "period_quarter"
	case IntervalMonth:
		return "period_month"
	case IntervalWeek:
		return "period_week"
	case IntervalDay:
		return "period_day"
	}
	return ""
}

// Labels returns the label of t for every interval, keyed by interval.
func Labels(t time.Time) map[PeriodInterval]string {
	out := make(map[PeriodInterval]string, len(intervals))
	for _, iv := range intervals {
		out[iv] = iv.Label(t)
	}
	return out
}
