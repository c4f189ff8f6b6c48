package rollup

import (
	"fmt"
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
)

// NextHourlyRun returns the first instant strictly after now that sits
// delay past the top of an hour (e.g. HH:05:00 for a 5 minute delay).
func NextHourlyRun(now time.Time, delay time.Duration) time.Time {
	next := now.Truncate(time.Hour).Add(delay)
	for !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// NextDailyRun returns the next occurrence of the "HH:MM" wall clock time
// strictly after now, in now's location.
func NextDailyRun(now time.Time, timeOfDay string) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}

	run := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run, nil
}

// PreviousWindow is the last complete bucket of period before now, in UTC
func PreviousWindow(period model.Period, now time.Time) model.TimeRange {
	end := period.Floor(now)
	return model.TimeRange{Start: period.Floor(end.Add(-time.Nanosecond)), End: end}
}
