package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used by every provider reporting API
const DateLayout = "2006-01-02"

// DefaultSyncWindow is how far back a sync reaches when no start date is given
const DefaultSyncWindow = 30 * 24 * time.Hour

// DateRange is an inclusive calendar window, both ends truncated to UTC days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ResolveDateRange applies the sync window defaults. A missing end defaults to now and a
// missing start defaults to thirty days before the end.
func ResolveDateRange(start, end *time.Time, now time.Time) (DateRange, error) {
	r := DateRange{End: truncateDay(now)}
	if end != nil {
		r.End = truncateDay(*end)
	}
	r.Start = truncateDay(r.End.Add(-DefaultSyncWindow))
	if start != nil {
		r.Start = truncateDay(*start)
	}
	if r.Start.After(r.End) {
		return DateRange{}, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidDateRange, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// Days returns every day in the window, start and end included
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// StartString formats the start of the window for provider requests
func (r DateRange) StartString() string {
	return r.Start.Format(DateLayout)
}

// EndString formats the end of the window for provider requests
func (r DateRange) EndString() string {
	return r.End.Format(DateLayout)
}

// ParseDate parses a provider calendar date (YYYY-MM-DD or YYYYMMDD)
func ParseDate(value string) (time.Time, error) {
	if len(value) == 8 {
		return time.Parse("20060102", value)
	}
	return time.Parse(DateLayout, value)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
