package recur

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frequency values.
const (
	Daily     = "daily"
	Weekly    = "weekly"
	Biweekly  = "biweekly"
	Monthly   = "monthly"
	Quarterly = "quarterly"
	Yearly    = "yearly"
)

// Monthly pattern selectors.
const (
	ByDayOfMonth = "day_of_month"
	ByDayOfWeek  = "day_of_week"
)

// Special WeekOfMonth ordinals.
const (
	LastWeek     = -1 // last occurrence of the weekday in the month
	LastFullWeek = -2 // weekday inside the last Monday-Sunday span fully contained in the month
)

// DateLayout is the storage format for due dates.
const DateLayout = "2006-01-02"

// Config describes how a task repeats. It is embedded in the owning task row
// and destroyed with it. Interval multiplies the base cadence; for biweekly
// the effective stride is 2*Interval weeks, anchored at the reference week.
// At most one of EndDate and EndAfterOccurrences may be set; with neither the
// series is unbounded.
type Config struct {
	Frequency           string  `json:"frequency" enum:"daily,weekly,biweekly,monthly,quarterly,yearly"`
	Interval            int     `json:"interval"`
	DaysOfWeek          []int   `json:"days_of_week,omitempty"`
	MonthlyPattern      string  `json:"monthly_pattern,omitempty" enum:"day_of_month,day_of_week"`
	DayOfMonth          int     `json:"day_of_month,omitempty"`
	WeekOfMonth         int     `json:"week_of_month,omitempty"`
	MonthlyDayOfWeek    int     `json:"monthly_day_of_week,omitempty"`
	EndDate             *string `json:"end_date,omitempty" format:"date"`
	EndAfterOccurrences *int    `json:"end_after_occurrences,omitempty"`
}

// Validate rejects malformed rules at the input boundary so the calculator
// never has to.
func (c Config) Validate() error {
	switch c.Frequency {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
	default:
		return fmt.Errorf("unknown frequency %q", c.Frequency)
	}
	if c.Interval < 1 {
		return fmt.Errorf("interval must be >= 1, got %d", c.Interval)
	}
	if c.EndDate != nil && c.EndAfterOccurrences != nil {
		return fmt.Errorf("end_date and end_after_occurrences are mutually exclusive")
	}
	if c.EndDate != nil {
		if _, err := time.Parse(DateLayout, *c.EndDate); err != nil {
			return fmt.Errorf("invalid end_date %q: %w", *c.EndDate, err)
		}
	}
	if c.EndAfterOccurrences != nil && *c.EndAfterOccurrences < 1 {
		return fmt.Errorf("end_after_occurrences must be >= 1, got %d", *c.EndAfterOccurrences)
	}
	for _, d := range c.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("days_of_week entry %d out of range 0-6", d)
		}
	}
	if len(c.DaysOfWeek) > 0 && c.Frequency != Weekly && c.Frequency != Biweekly {
		return fmt.Errorf("days_of_week only applies to weekly and biweekly rules")
	}
	if c.Frequency == Monthly || c.Frequency == Quarterly {
		switch c.MonthlyPattern {
		case "", ByDayOfMonth:
			if c.DayOfMonth != 0 && (c.DayOfMonth < 1 || c.DayOfMonth > 31) {
				return fmt.Errorf("day_of_month %d out of range 1-31", c.DayOfMonth)
			}
		case ByDayOfWeek:
			switch c.WeekOfMonth {
			case 1, 2, 3, 4, LastWeek, LastFullWeek:
			default:
				return fmt.Errorf("week_of_month %d must be 1-4, -1 or -2", c.WeekOfMonth)
			}
			if c.MonthlyDayOfWeek < 0 || c.MonthlyDayOfWeek > 6 {
				return fmt.Errorf("monthly_day_of_week %d out of range 0-6", c.MonthlyDayOfWeek)
			}
		default:
			return fmt.Errorf("unknown monthly_pattern %q", c.MonthlyPattern)
		}
	}
	return nil
}

// Parse decodes and validates an embedded rule.
func Parse(raw string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Config{}, fmt.Errorf("invalid recurring config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// JSON encodes the rule for storage.
func (c Config) JSON() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c Config) endDate() (time.Time, bool) {
	if c.EndDate == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *c.EndDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
