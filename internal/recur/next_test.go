package recur_test

import (
	"testing"
	"time"

	"boardline/internal/recur"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustNext(t *testing.T, cfg recur.Config, from time.Time) time.Time {
	t.Helper()
	next, ok := recur.Next(cfg, from)
	if !ok {
		t.Fatalf("expected occurrence after %s", from.Format(recur.DateLayout))
	}
	return next
}

func TestDaily(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Daily, Interval: 1}
	if got := mustNext(t, cfg, date(2024, time.March, 15)); !got.Equal(date(2024, time.March, 16)) {
		t.Fatalf("got %s", got)
	}
	cfg.Interval = 3
	if got := mustNext(t, cfg, date(2024, time.March, 30)); !got.Equal(date(2024, time.April, 2)) {
		t.Fatalf("interval 3 got %s", got)
	}
}

func TestWeeklyPicksNextSelectedWeekday(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Weekly, Interval: 1, DaysOfWeek: []int{1, 3, 5}}
	// 2024-01-01 is a Monday; the next selected day is Wednesday.
	got := mustNext(t, cfg, date(2024, time.January, 1))
	if !got.Equal(date(2024, time.January, 3)) {
		t.Fatalf("expected Wednesday Jan 3, got %s", got)
	}
	// From Friday the week is exhausted; wraps to Monday next week.
	got = mustNext(t, cfg, date(2024, time.January, 5))
	if !got.Equal(date(2024, time.January, 8)) {
		t.Fatalf("expected Monday Jan 8, got %s", got)
	}
}

func TestWeeklyDefaultsToMonday(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Weekly, Interval: 1}
	got := mustNext(t, cfg, date(2024, time.January, 3)) // Wednesday
	if got.Weekday() != time.Monday {
		t.Fatalf("expected a Monday, got %s", got.Weekday())
	}
	if !got.Equal(date(2024, time.January, 8)) {
		t.Fatalf("got %s", got)
	}
}

func TestWeeklyIntervalSkipsWeeks(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Weekly, Interval: 2, DaysOfWeek: []int{1}}
	got := mustNext(t, cfg, date(2024, time.January, 1))
	if !got.Equal(date(2024, time.January, 15)) {
		t.Fatalf("expected Jan 15, got %s", got)
	}
}

func TestBiweeklyStride(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Biweekly, Interval: 1, DaysOfWeek: []int{1}}
	got := mustNext(t, cfg, date(2024, time.January, 1))
	if !got.Equal(date(2024, time.January, 15)) {
		t.Fatalf("expected two-week stride to Jan 15, got %s", got)
	}
	// A selected day still remaining in the anchor week is used first.
	cfg.DaysOfWeek = []int{1, 4}
	got = mustNext(t, cfg, date(2024, time.January, 1))
	if !got.Equal(date(2024, time.January, 4)) {
		t.Fatalf("expected Thursday Jan 4, got %s", got)
	}
}

func TestMonthlyDayOfMonthClamps(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfMonth, DayOfMonth: 31}
	got := mustNext(t, cfg, date(2024, time.January, 31))
	if !got.Equal(date(2024, time.February, 29)) {
		t.Fatalf("expected leap Feb 29, got %s", got)
	}
	got = mustNext(t, cfg, date(2023, time.January, 31))
	if !got.Equal(date(2023, time.February, 28)) {
		t.Fatalf("expected Feb 28, got %s", got)
	}
	// The captured day, not the clamped one, carries forward.
	got = mustNext(t, cfg, date(2024, time.February, 29))
	if !got.Equal(date(2024, time.March, 31)) {
		t.Fatalf("expected Mar 31, got %s", got)
	}
}

func TestMonthlyNthWeekday(t *testing.T) {
	// Second Tuesday of the next month.
	cfg := recur.Config{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfWeek, WeekOfMonth: 2, MonthlyDayOfWeek: 2}
	got := mustNext(t, cfg, date(2024, time.March, 12))
	if !got.Equal(date(2024, time.April, 9)) {
		t.Fatalf("expected Apr 9, got %s", got)
	}
}

func TestMonthlyLastWeekday(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfWeek, WeekOfMonth: recur.LastWeek, MonthlyDayOfWeek: 5}
	got := mustNext(t, cfg, date(2024, time.January, 26))
	// Last Friday of February 2024.
	if !got.Equal(date(2024, time.February, 23)) {
		t.Fatalf("expected Feb 23, got %s", got)
	}
}

func TestMonthlyLastFullWeek(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfWeek, WeekOfMonth: recur.LastFullWeek, MonthlyDayOfWeek: 3}
	got := mustNext(t, cfg, date(2024, time.February, 1))
	// March 2024: last Monday-Sunday span fully inside is Mar 25-31; Wednesday is the 27th.
	if !got.Equal(date(2024, time.March, 27)) {
		t.Fatalf("expected Mar 27, got %s", got)
	}
}

func TestMonthlyLastFullWeekClampsWeekend(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfWeek, WeekOfMonth: recur.LastFullWeek, MonthlyDayOfWeek: 0}
	got := mustNext(t, cfg, date(2024, time.February, 1))
	if got.Weekday() != time.Monday {
		t.Fatalf("weekend day should clamp to Monday, got %s", got.Weekday())
	}
	if !got.Equal(date(2024, time.March, 25)) {
		t.Fatalf("expected Mar 25, got %s", got)
	}
}

func TestQuarterlySteps(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Quarterly, Interval: 1, MonthlyPattern: recur.ByDayOfMonth, DayOfMonth: 15}
	got := mustNext(t, cfg, date(2024, time.November, 15))
	if !got.Equal(date(2025, time.February, 15)) {
		t.Fatalf("expected Feb 15 next year, got %s", got)
	}
}

func TestYearlyLeapClamp(t *testing.T) {
	cfg := recur.Config{Frequency: recur.Yearly, Interval: 1}
	got := mustNext(t, cfg, date(2024, time.February, 29))
	if !got.Equal(date(2025, time.February, 28)) {
		t.Fatalf("expected Feb 28 2025, got %s", got)
	}
	got = mustNext(t, cfg, date(2023, time.February, 28))
	if !got.Equal(date(2024, time.February, 28)) {
		t.Fatalf("expected Feb 28 2024, got %s", got)
	}
}

func TestEndDateEndsSeries(t *testing.T) {
	end := "2024-03-15"
	cfg := recur.Config{Frequency: recur.Daily, Interval: 1, EndDate: &end}
	if _, ok := recur.Next(cfg, date(2024, time.March, 15)); ok {
		t.Fatalf("expected series end at end_date")
	}
	if _, ok := recur.Next(cfg, date(2024, time.March, 20)); ok {
		t.Fatalf("expected series end past end_date")
	}
	if next, ok := recur.Next(cfg, date(2024, time.March, 14)); !ok || !next.Equal(date(2024, time.March, 15)) {
		t.Fatalf("expected final occurrence on end_date, got %v %v", next, ok)
	}
}

func TestNextAlwaysAdvances(t *testing.T) {
	configs := []recur.Config{
		{Frequency: recur.Daily, Interval: 1},
		{Frequency: recur.Weekly, Interval: 1, DaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6}},
		{Frequency: recur.Biweekly, Interval: 2, DaysOfWeek: []int{6}},
		{Frequency: recur.Monthly, Interval: 1, MonthlyPattern: recur.ByDayOfMonth, DayOfMonth: 1},
		{Frequency: recur.Monthly, Interval: 2, MonthlyPattern: recur.ByDayOfWeek, WeekOfMonth: 4, MonthlyDayOfWeek: 6},
		{Frequency: recur.Quarterly, Interval: 1},
		{Frequency: recur.Yearly, Interval: 1},
	}
	from := date(2023, time.December, 31)
	for _, cfg := range configs {
		cur := from
		for i := 0; i < 50; i++ {
			next, ok := recur.Next(cfg, cur)
			if !ok {
				t.Fatalf("%s: unexpected series end at %s", cfg.Frequency, cur)
			}
			if !next.After(cur) {
				t.Fatalf("%s: %s does not advance past %s", cfg.Frequency, next, cur)
			}
			cur = next
		}
	}
}
