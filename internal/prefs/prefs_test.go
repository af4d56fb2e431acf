package prefs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasksched/internal/database"
	"github.com/jask/jasksched/internal/database/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return &Store{Prefs: repository.NewPreferenceRepo(db)}
}

func TestUpcomingWindowDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.UpcomingWindowDays(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultUpcomingWindowDays, n)

	require.NoError(t, store.Prefs.Set(ctx, KeyUpcomingLength, "14"))
	n, err = store.UpcomingWindowDays(ctx)
	require.NoError(t, err)
	require.Equal(t, 14, n)

	// garbage falls back to the default rather than erroring
	require.NoError(t, store.Prefs.Set(ctx, KeyUpcomingLength, "a fortnight"))
	n, err = store.UpcomingWindowDays(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultUpcomingWindowDays, n)

	require.NoError(t, store.Prefs.Set(ctx, KeyUpcomingLength, "-3"))
	n, err = store.UpcomingWindowDays(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultUpcomingWindowDays, n)
}

func TestWeekendDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	set, err := store.WeekendDays(ctx)
	require.NoError(t, err)
	require.True(t, set.Contains(time.Saturday))
	require.True(t, set.Contains(time.Sunday))

	require.NoError(t, store.Prefs.Set(ctx, KeyWeekendDays, "fri,sat"))
	set, err = store.WeekendDays(ctx)
	require.NoError(t, err)
	require.True(t, set.Contains(time.Friday))
	require.False(t, set.Contains(time.Sunday))

	require.NoError(t, store.Prefs.Set(ctx, KeyWeekendDays, "none"))
	set, err = store.WeekendDays(ctx)
	require.NoError(t, err)
	require.True(t, set.Empty())
}

func TestFirstDayOfWeekIdx(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.FirstDayOfWeekIdx(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, store.Prefs.Set(ctx, KeyFirstDayOfWeek, "1"))
	n, err = store.FirstDayOfWeekIdx(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, store.Prefs.Set(ctx, KeyFirstDayOfWeek, "9"))
	n, err = store.FirstDayOfWeekIdx(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestLastScheduleRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LastScheduleRun(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	day := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastScheduleRun(ctx, day))
	got, err = store.LastScheduleRun(ctx)
	require.NoError(t, err)
	require.Equal(t, day, got)

	// unparseable stored values read as never-ran
	require.NoError(t, store.Prefs.Set(ctx, KeyLastScheduleRun, "last tuesday"))
	got, err = store.LastScheduleRun(ctx)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}
