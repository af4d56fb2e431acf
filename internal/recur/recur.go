package recur

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Frequency identifies how a recurring value repeats.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// SolveMode controls which direction a weekend occurrence is shifted.
type SolveMode string

const (
	SolveBefore SolveMode = "before"
	SolveAfter  SolveMode = "after"
)

// End modes for bounded patterns.
const (
	EndNever       = "never"
	EndAfterN      = "after_n_occurrences"
	EndOnDate      = "on_date"
	maxOccurrences = 10000 // guard against runaway expansion
)

// Pattern narrows a monthly frequency to specific days. Type is either "day"
// (Value = day of month, -1 for the last day) or a lowercase weekday name
// "sun".."sat" (Value = nth such weekday, -1 for the last one).
type Pattern struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Config describes a recurrence pattern anchored at Start.
type Config struct {
	Start            string    `json:"start"`
	Frequency        Frequency `json:"frequency"`
	Interval         int       `json:"interval,omitempty"`
	Patterns         []Pattern `json:"patterns,omitempty"`
	SkipWeekend      bool      `json:"skipWeekend,omitempty"`
	WeekendSolveMode SolveMode `json:"weekendSolveMode,omitempty"`
	EndMode          string    `json:"endMode,omitempty"`
	EndOccurrences   int       `json:"endOccurrences,omitempty"`
	EndDate          string    `json:"endDate,omitempty"`
}

// ConfigError reports a malformed recurrence configuration. The offending
// config rides along so callers can log it before surfacing the failure.
type ConfigError struct {
	Config Config
	Reason string
}

func (e *ConfigError) Error() string {
	raw, _ := json.Marshal(e.Config)
	return fmt.Sprintf("invalid recurrence config: %s (%s)", e.Reason, raw)
}

const dateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

func (c Config) validate() error {
	if _, err := ParseDate(c.Start); err != nil {
		return &ConfigError{Config: c, Reason: "unparseable start date"}
	}
	switch c.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return &ConfigError{Config: c, Reason: "unknown frequency " + string(c.Frequency)}
	}
	if c.Interval < 0 {
		return &ConfigError{Config: c, Reason: "negative interval"}
	}
	for _, p := range c.Patterns {
		if p.Type == "day" {
			if p.Value == 0 || p.Value < -1 || p.Value > 31 {
				return &ConfigError{Config: c, Reason: fmt.Sprintf("pattern day %d out of range", p.Value)}
			}
			continue
		}
		if _, ok := weekdayNames[p.Type]; !ok {
			return &ConfigError{Config: c, Reason: "unknown pattern type " + p.Type}
		}
		// No month has more than five of any weekday; a larger value would
		// never match and the month walk would spin without emitting.
		if p.Value == 0 || p.Value < -1 || p.Value > 5 {
			return &ConfigError{Config: c, Reason: fmt.Sprintf("pattern value %d out of range for weekday %s", p.Value, p.Type)}
		}
	}
	switch c.EndMode {
	case "", EndNever:
	case EndAfterN:
		if c.EndOccurrences <= 0 {
			return &ConfigError{Config: c, Reason: "end_occurrences must be positive"}
		}
	case EndOnDate:
		if _, err := ParseDate(c.EndDate); err != nil {
			return &ConfigError{Config: c, Reason: "unparseable end date"}
		}
	default:
		return &ConfigError{Config: c, Reason: "unknown end mode " + c.EndMode}
	}
	return nil
}

func (c Config) interval() int {
	if c.Interval <= 0 {
		return 1
	}
	return c.Interval
}

// occurrences walks the pattern from its anchor and hands each raw occurrence
// (pre weekend adjustment) to fn, in increasing order. Returning false stops
// the walk. Bounded by end conditions and by maxOccurrences.
func (c Config) occurrences(fn func(time.Time) bool) error {
	if err := c.validate(); err != nil {
		return err
	}
	start, _ := ParseDate(c.Start)
	var endDate time.Time
	if c.EndMode == EndOnDate {
		endDate, _ = ParseDate(c.EndDate)
	}

	emitted := 0
	emit := func(d time.Time) bool {
		if c.EndMode == EndOnDate && d.After(endDate) {
			return false
		}
		emitted++
		if !fn(d) {
			return false
		}
		if c.EndMode == EndAfterN && emitted >= c.EndOccurrences {
			return false
		}
		return emitted < maxOccurrences
	}

	switch c.Frequency {
	case Daily:
		for d := start; ; d = d.AddDate(0, 0, c.interval()) {
			if !emit(d) {
				return nil
			}
		}
	case Weekly:
		for d := start; ; d = d.AddDate(0, 0, 7*c.interval()) {
			if !emit(d) {
				return nil
			}
		}
	case Yearly:
		for k := 0; ; k += c.interval() {
			d := time.Date(start.Year()+k, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
			// AddDate-style normalization would turn Feb 29 into Mar 1 on
			// non-leap years; such years simply have no occurrence.
			if d.Month() != start.Month() {
				continue
			}
			if !emit(d) {
				return nil
			}
		}
	case Monthly:
		for k := 0; ; k += c.interval() {
			anchor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, k, 0)
			days := c.monthDays(anchor, start.Day())
			for _, d := range days {
				if k == 0 && d.Before(start) {
					continue
				}
				if !emit(d) {
					return nil
				}
			}
		}
	}
	return nil
}

// monthDays expands the configured patterns within the month that anchor
// falls in. With no patterns the start's day of month is used.
func (c Config) monthDays(anchor time.Time, startDay int) []time.Time {
	year, month := anchor.Year(), anchor.Month()
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	patterns := c.Patterns
	if len(patterns) == 0 {
		patterns = []Pattern{{Type: "day", Value: startDay}}
	}

	var out []time.Time
	for _, p := range patterns {
		if p.Type == "day" {
			day := p.Value
			if day == -1 {
				day = lastDay
			}
			if day > lastDay {
				continue // no such day this month
			}
			out = append(out, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
			continue
		}
		wd := weekdayNames[p.Type]
		if p.Value == -1 {
			last := time.Date(year, month, lastDay, 0, 0, 0, 0, time.UTC)
			offset := (int(last.Weekday()) - int(wd) + 7) % 7
			out = append(out, last.AddDate(0, 0, -offset))
			continue
		}
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(wd) - int(first.Weekday()) + 7) % 7
		d := first.AddDate(0, 0, offset+7*(p.Value-1))
		if d.Month() != month {
			continue // month has no nth such weekday
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// solveWeekend shifts d off the weekend according to the configured mode.
// A set covering all seven days is unsolvable and leaves d unchanged.
func (c Config) solveWeekend(d time.Time, weekend WeekendSet) time.Time {
	if !c.SkipWeekend || weekend.Empty() || weekend.Full() {
		return d
	}
	step := 1
	if c.WeekendSolveMode == SolveBefore {
		step = -1
	}
	for weekend.Contains(d.Weekday()) {
		d = d.AddDate(0, 0, step)
	}
	return d
}

// DateValue is the decoded value of a schedule's date condition: either a
// literal date (one-off) or a recurrence config.
type DateValue struct {
	Date  time.Time
	Recur *Config
}

// Recurring reports whether the value repeats.
func (v DateValue) Recurring() bool { return v.Recur != nil }

// NextDate returns the next occurrence of v relative to ref. For a literal
// date it returns the value itself when it is on or after ref, else ok=false
// (one-off values do not recur). For a recurring value it returns the first
// occurrence strictly after ref, or on/after ref when inclusive is set, with
// weekend occurrences shifted per the configured solve mode.
func NextDate(v DateValue, ref time.Time, inclusive bool, weekend WeekendSet) (time.Time, bool, error) {
	if !v.Recurring() {
		if v.Date.Before(ref) {
			return time.Time{}, false, nil
		}
		return v.Date, true, nil
	}
	var found time.Time
	ok := false
	err := v.Recur.occurrences(func(d time.Time) bool {
		d = v.Recur.solveWeekend(d, weekend)
		if d.After(ref) || (inclusive && d.Equal(ref)) {
			found, ok = d, true
			return false
		}
		return true
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return found, ok, nil
}

// UpcomingDates returns up to count occurrence dates of v on or after from,
// in strictly increasing order. A bounded pattern may yield fewer than count.
func UpcomingDates(v DateValue, count int, from time.Time, weekend WeekendSet) ([]time.Time, error) {
	if count <= 0 {
		return nil, nil
	}
	if !v.Recurring() {
		if v.Date.Before(from) {
			return nil, nil
		}
		return []time.Time{v.Date}, nil
	}
	var out []time.Time
	var last time.Time
	err := v.Recur.occurrences(func(d time.Time) bool {
		d = v.Recur.solveWeekend(d, weekend)
		if d.Before(from) {
			return true
		}
		// Weekend adjustment can fold neighbouring occurrences onto the
		// same day; keep the sequence strictly increasing.
		if len(out) > 0 && !d.After(last) {
			return true
		}
		out = append(out, d)
		last = d
		return len(out) < count
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
