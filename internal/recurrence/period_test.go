package recurrence

import (
	"testing"
	"time"

	"github.com/dukerupert/kidquest/internal/model"
)

func d(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		name string
		rec  model.Recurrence
		at   time.Time
		want string
	}{
		{"once", model.RecurrenceOnce, d(2026, 3, 4, 9), "once"},
		{"daily morning", model.RecurrenceDaily, d(2026, 3, 4, 0), "2026-03-04"},
		{"daily late", model.RecurrenceDaily, d(2026, 3, 4, 23), "2026-03-04"},
		{"weekly wednesday", model.RecurrenceWeekly, d(2026, 3, 4, 12), "2026-03-02"},
		{"weekly monday", model.RecurrenceWeekly, d(2026, 3, 2, 0), "2026-03-02"},
		{"weekly sunday", model.RecurrenceWeekly, d(2026, 3, 8, 23), "2026-03-02"},
		{"weekly across month", model.RecurrenceWeekly, d(2026, 4, 1, 8), "2026-03-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Period(tt.rec, tt.at, time.UTC)
			if err != nil {
				t.Fatalf("Period: %v", err)
			}
			if got != tt.want {
				t.Errorf("Period = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPeriodUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 03:00 UTC on the 5th is still the 4th five hours west.
	got, err := Period(model.RecurrenceDaily, d(2026, 3, 5, 3), loc)
	if err != nil {
		t.Fatalf("Period: %v", err)
	}
	if got != "2026-03-04" {
		t.Errorf("Period = %q, want %q", got, "2026-03-04")
	}
}

func TestPeriodUnknown(t *testing.T) {
	if _, err := Period("monthly", d(2026, 3, 4, 0), time.UTC); err == nil {
		t.Error("expected error for unknown recurrence")
	}
}

func TestBounds(t *testing.T) {
	start, end, err := Bounds(model.RecurrenceWeekly, "2026-03-02", time.UTC)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if !start.Equal(d(2026, 3, 2, 0)) {
		t.Errorf("start = %v, want %v", start, d(2026, 3, 2, 0))
	}
	if !end.Equal(d(2026, 3, 9, 0)) {
		t.Errorf("end = %v, want %v", end, d(2026, 3, 9, 0))
	}

	start, end, err = Bounds(model.RecurrenceDaily, "2026-02-28", time.UTC)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if !end.Equal(d(2026, 3, 1, 0)) || !start.Equal(d(2026, 2, 28, 0)) {
		t.Errorf("bounds = [%v, %v)", start, end)
	}

	if _, _, err := Bounds(model.RecurrenceWeekly, "2026-03-04", time.UTC); err == nil {
		t.Error("expected error for weekly key that is not a Monday")
	}
	if _, _, err := Bounds(model.RecurrenceOnce, "2026-03-04", time.UTC); err == nil {
		t.Error("expected error for once recurrence with a date key")
	}
}

func TestPeriodRollsOver(t *testing.T) {
	// Every instant inside a period's bounds maps back to the same key.
	for _, rec := range []model.Recurrence{model.RecurrenceDaily, model.RecurrenceWeekly} {
		key, err := Period(rec, d(2026, 3, 4, 12), time.UTC)
		if err != nil {
			t.Fatalf("Period: %v", err)
		}
		start, end, err := Bounds(rec, key, time.UTC)
		if err != nil {
			t.Fatalf("Bounds: %v", err)
		}
		last := end.Add(-time.Nanosecond)
		if got, _ := Period(rec, last, time.UTC); got != key {
			t.Errorf("%s: Period(end-1ns) = %q, want %q", rec, got, key)
		}
		if got, _ := Period(rec, end, time.UTC); got == key {
			t.Errorf("%s: Period(end) = %q, want next period", rec, got)
		}
		if got, _ := Period(rec, start, time.UTC); got != key {
			t.Errorf("%s: Period(start) = %q, want %q", rec, got, key)
		}
	}
}
