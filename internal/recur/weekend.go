package recur

import (
	"strconv"
	"strings"
	"time"
)

// WeekendSet is the set of weekdays treated as weekend for skip purposes.
type WeekendSet map[time.Weekday]bool

// DefaultWeekend is Saturday and Sunday.
func DefaultWeekend() WeekendSet {
	return WeekendSet{time.Saturday: true, time.Sunday: true}
}

func (s WeekendSet) Empty() bool { return len(s) == 0 }

func (s WeekendSet) Contains(d time.Weekday) bool { return s[d] }

// Full reports whether every weekday is in the set. Such a set leaves no day
// to shift a weekend occurrence onto.
func (s WeekendSet) Full() bool {
	n := 0
	for _, in := range s {
		if in {
			n++
		}
	}
	return n == 7
}

var longWeekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// ParseWeekendDays parses the weekendDays preference: a comma list of day
// names ("sat,sun"), day indexes ("6,0", Sunday = 0), or the literal "none"
// for an empty set. An empty or missing value yields the default weekend.
// Unrecognised entries are ignored.
func ParseWeekendDays(v string) WeekendSet {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DefaultWeekend()
	}
	if v == "none" {
		return WeekendSet{}
	}
	set := WeekendSet{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if wd, ok := weekdayNames[part]; ok {
			set[wd] = true
			continue
		}
		if wd, ok := longWeekdayNames[part]; ok {
			set[wd] = true
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n >= 0 && n <= 6 {
			set[time.Weekday(n)] = true
		}
	}
	return set
}
