// Package prefs exposes typed accessors over the string-keyed preference
// table shared with syncing peers.
package prefs

import (
	"context"
	"strconv"
	"time"

	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/recur"
)

// Preference keys.
const (
	KeyWeekendDays     = "weekendDays"
	KeyUpcomingLength  = "upcomingScheduledTransactionLength"
	KeyFirstDayOfWeek  = "firstDayOfWeekIdx"
	KeyLastScheduleRun = "lastScheduleRun"
)

// DefaultUpcomingWindowDays applies when the preference is unset or garbage.
const DefaultUpcomingWindowDays = 7

// Store wraps the preference repo with typed accessors.
type Store struct {
	Prefs *repository.PreferenceRepo
}

// WeekendDays returns the configured weekend day set.
func (s *Store) WeekendDays(ctx context.Context) (recur.WeekendSet, error) {
	v, err := s.Prefs.Get(ctx, KeyWeekendDays)
	if err != nil {
		return nil, err
	}
	return recur.ParseWeekendDays(v), nil
}

// UpcomingWindowDays returns the upcoming-window length. The preference is
// stored as a string-encoded integer; anything unparsable falls back to the
// default of 7.
func (s *Store) UpcomingWindowDays(ctx context.Context) (int, error) {
	v, err := s.Prefs.Get(ctx, KeyUpcomingLength)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return DefaultUpcomingWindowDays, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return DefaultUpcomingWindowDays, nil
	}
	return n, nil
}

// FirstDayOfWeekIdx returns the configured first day of week (Sunday = 0).
func (s *Store) FirstDayOfWeekIdx(ctx context.Context) (int, error) {
	v, err := s.Prefs.Get(ctx, KeyFirstDayOfWeek)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 6 {
		return 0, nil
	}
	return n, nil
}

// LastScheduleRun returns the calendar day of the most recent advancement
// run, or zero when it has never run.
func (s *Store) LastScheduleRun(ctx context.Context) (time.Time, error) {
	v, err := s.Prefs.Get(ctx, KeyLastScheduleRun)
	if err != nil {
		return time.Time{}, err
	}
	if v == "" {
		return time.Time{}, nil
	}
	t, err := recur.ParseDate(v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastScheduleRun records day as the most recent advancement run.
func (s *Store) SetLastScheduleRun(ctx context.Context, day time.Time) error {
	return s.Prefs.Set(ctx, KeyLastScheduleRun, recur.FormatDate(day))
}
