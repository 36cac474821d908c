// Package recurrence maps quest recurrences onto period keys. A quest has
// at most one instance per period, so the key is what rolls a daily or
// weekly quest over to a fresh instance.
package recurrence

import (
	"fmt"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

// OncePeriod is the single period of a non-recurring quest.
const OncePeriod = "once"

const dateLayout = "2006-01-02"

// Period returns the key of the period containing t, evaluated in loc.
// Daily keys are the calendar date; weekly keys are the date of the
// Monday starting the week.
func Period(rec model.Recurrence, t time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	switch rec {
	case model.RecurrenceOnce:
		return OncePeriod, nil
	case model.RecurrenceDaily:
		return startOfDay(t).Format(dateLayout), nil
	case model.RecurrenceWeekly:
		return weekStart(t).Format(dateLayout), nil
	}
	return "", fmt.Errorf("unknown recurrence %q", rec)
}

// Bounds returns the half-open interval [start, end) covered by a period
// key. The once period has no bounds and returns zero times.
func Bounds(rec model.Recurrence, key string, loc *time.Location) (start, end time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}

	switch rec {
	case model.RecurrenceOnce:
		if key != OncePeriod {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid once period %q", key)
		}
		return time.Time{}, time.Time{}, nil
	case model.RecurrenceDaily, model.RecurrenceWeekly:
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown recurrence %q", rec)
	}

	start, err = time.ParseInLocation(dateLayout, key, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period %q: %w", key, err)
	}
	if rec == model.RecurrenceDaily {
		return start, start.AddDate(0, 0, 1), nil
	}
	if start.Weekday() != time.Monday {
		return time.Time{}, time.Time{}, fmt.Errorf("weekly period %q is not a Monday", key)
	}
	return start, start.AddDate(0, 0, 7), nil
}

// Valid reports whether rec is a known recurrence.
func Valid(rec model.Recurrence) bool {
	switch rec {
	case model.RecurrenceOnce, model.RecurrenceDaily, model.RecurrenceWeekly:
		return true
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func weekStart(t time.Time) time.Time {
	wd := t.Weekday()
	offset := int(wd) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}
