package recur

import "time"

// Next computes the occurrence after from, at day granularity in UTC. It is
// pure: no side effects, inputs untouched. The second return is false when
// the series has ended, i.e. from is at or past the rule's end date. The
// returned date is always strictly after from.
//
// Occurrence-count end conditions are tracked by the caller, which knows how
// many rows the series has produced; this function only sees dates.
func Next(cfg Config, from time.Time) (time.Time, bool) {
	from = dateOnly(from)
	if end, ok := cfg.endDate(); ok && !from.Before(end) {
		return time.Time{}, false
	}
	interval := cfg.Interval
	if interval < 1 {
		interval = 1
	}
	switch cfg.Frequency {
	case Daily:
		return from.AddDate(0, 0, interval), true
	case Weekly:
		return nextWeekday(cfg.DaysOfWeek, from, interval), true
	case Biweekly:
		return nextWeekday(cfg.DaysOfWeek, from, 2*interval), true
	case Monthly:
		return nextMonthly(cfg, from, interval), true
	case Quarterly:
		return nextMonthly(cfg, from, 3*interval), true
	case Yearly:
		return nextYearly(from, interval), true
	}
	return time.Time{}, false
}

// nextWeekday finds the first date strictly after from whose weekday is in
// the set and whose week lies on the stride grid anchored at from's week.
func nextWeekday(daysOfWeek []int, from time.Time, strideWeeks int) time.Time {
	set := map[int]bool{}
	for _, d := range daysOfWeek {
		set[d] = true
	}
	if len(set) == 0 {
		set[1] = true // Monday
	}
	anchor := startOfWeek(from)
	// Bounded: a matching weekday exists within one stride plus the rest of
	// the current week.
	for d := 1; d <= 7*strideWeeks+7; d++ {
		cand := from.AddDate(0, 0, d)
		if !set[int(cand.Weekday())] {
			continue
		}
		weeks := int(startOfWeek(cand).Sub(anchor).Hours()) / (24 * 7)
		if weeks%strideWeeks == 0 {
			return cand
		}
	}
	return from.AddDate(0, 0, 7*strideWeeks)
}

func nextMonthly(cfg Config, from time.Time, months int) time.Time {
	y, m, _ := from.Date()
	ty, tm := addMonths(y, int(m), months)
	if cfg.MonthlyPattern == ByDayOfWeek {
		return nthWeekdayOfMonth(ty, tm, cfg.MonthlyDayOfWeek, cfg.WeekOfMonth)
	}
	day := cfg.DayOfMonth
	if day == 0 {
		// Captured from the original due date, not re-derived per occurrence.
		day = from.Day()
	}
	return clampedDate(ty, tm, day)
}

func nextYearly(from time.Time, years int) time.Time {
	y, m, d := from.Date()
	ty := y + years
	if m == time.February && d == 29 && !isLeap(ty) {
		d = 28
	}
	return time.Date(ty, m, d, 0, 0, 0, 0, time.UTC)
}

// nthWeekdayOfMonth resolves the ordinal-weekday patterns. ordinal 1-4 counts
// from the start; LastWeek is the final occurrence of the weekday; LastFullWeek
// picks the weekday inside the last Monday-Sunday span fully contained in the
// month, with weekend weekdays clamped to Monday.
func nthWeekdayOfMonth(year, month, weekday, ordinal int) time.Time {
	last := lastDayOfMonth(year, month)
	switch ordinal {
	case LastWeek:
		d := last
		for int(d.Weekday()) != weekday {
			d = d.AddDate(0, 0, -1)
		}
		return d
	case LastFullWeek:
		if weekday == 0 || weekday == 6 {
			weekday = 1
		}
		sunday := last
		for sunday.Weekday() != time.Sunday {
			sunday = sunday.AddDate(0, 0, -1)
		}
		monday := sunday.AddDate(0, 0, -6)
		return monday.AddDate(0, 0, weekday-1)
	default:
		if ordinal < 1 {
			ordinal = 1
		}
		d := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		for int(d.Weekday()) != weekday {
			d = d.AddDate(0, 0, 1)
		}
		d = d.AddDate(0, 0, 7*(ordinal-1))
		if d.Month() != time.Month(month) {
			// 4th occurrence overflowed a short month; fall back to the last one.
			return nthWeekdayOfMonth(year, month, weekday, LastWeek)
		}
		return d
	}
}

func addMonths(year, month, delta int) (int, int) {
	idx := year*12 + (month - 1) + delta
	return idx / 12, idx%12 + 1
}

func clampedDate(year, month, day int) time.Time {
	if max := lastDayOfMonth(year, month).Day(); day > max {
		day = max
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func startOfWeek(t time.Time) time.Time {
	return dateOnly(t).AddDate(0, 0, -int(t.Weekday()))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
