package core

import (
	"fmt"
	"time"
)

const (
	Month Granularity = "month"
	Week  Granularity = "week"
)

// MaxHorizon caps the number of periods a single projection may cover.
const MaxHorizon = 60

type Granularity string

// Period is one unit of the forecast horizon. Start and End are UTC
// midnights and both are inclusive.
type Period struct {
	Index int
	Label string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on a day inside the period.
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// ValidateHorizon rejects horizons outside 1..MaxHorizon.
func ValidateHorizon(horizon int) error {
	if horizon <= 0 || horizon > MaxHorizon {
		return NewValidationError("horizon", fmt.Sprintf("horizon must be between 1 and %d, got %d", MaxHorizon, horizon))
	}
	return nil
}

// BuildPeriods returns horizon consecutive periods, the first one being the
// period that contains now.
func BuildPeriods(g Granularity, now time.Time, horizon int) ([]Period, error) {
	if err := ValidateHorizon(horizon); err != nil {
		return nil, err
	}
	today := DateOf(now)
	periods := make([]Period, 0, horizon)
	switch g {
	case Month:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < horizon; i++ {
			start := first.AddDate(0, i, 0)
			end := start.AddDate(0, 1, -1)
			periods = append(periods, Period{Index: i, Label: start.Format("2006-01"), Start: start, End: end})
		}
	case Week:
		offset := (int(today.Weekday()) + 6) % 7 // Monday is 0
		first := today.AddDate(0, 0, -offset)
		for i := 0; i < horizon; i++ {
			start := first.AddDate(0, 0, 7*i)
			year, week := start.ISOWeek()
			periods = append(periods, Period{
				Index: i,
				Label: fmt.Sprintf("%d-W%02d", year, week),
				Start: start,
				End:   start.AddDate(0, 0, 6),
			})
		}
	default:
		return nil, NewValidationError("granularity", fmt.Sprintf("unsupported granularity %q", string(g)))
	}
	return periods, nil
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate builds a UTC date.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DueDate returns the day-of-month occurrence inside the given month, clamped
// to the month's last day (31 in February becomes 28 or 29).
func DueDate(year int, month time.Month, dayOfMonth int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dayOfMonth > last {
		dayOfMonth = last
	}
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves anchor forward by n months keeping its day of month
// where possible. Jan 31 + 1 month is Feb 28/29, not Mar 3.
func AddMonthsClamped(anchor time.Time, n int) time.Time {
	anchor = DateOf(anchor)
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return DueDate(first.Year(), first.Month(), anchor.Day())
}

// MonthsBetween counts calendar months from a to b (b's month minus a's month).
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
