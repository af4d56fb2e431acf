package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/recur"
)

func seedHistory(t *testing.T, s *Service, payeeID, accountID string, cents int64, dates ...string) {
	t.Helper()
	for _, d := range dates {
		day, err := recur.ParseDate(d)
		require.NoError(t, err)
		require.NoError(t, s.Transactions.Insert(context.Background(), repository.Transaction{
			ID: uuid.NewString(), AccountID: accountID, PayeeID: &payeeID, Date: day, AmountCents: cents,
		}))
	}
}

func TestDiscoverMonthlyPattern(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "City Power & Light")

	seedHistory(t, s, "p1", "a1", -4310, "2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15")

	got, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p1", got[0].PayeeID)
	require.Equal(t, "a1", got[0].AccountID)
	require.Equal(t, int64(-4310), got[0].AmountCents)
	require.Equal(t, recur.Monthly, got[0].Config.Frequency)
	require.Equal(t, 1, got[0].Config.Interval)
	require.Equal(t, "2024-04-15", got[0].Config.Start)
	require.Equal(t, 4, got[0].Occurrences)
}

func TestDiscoverFoldsNearIdenticalPayeeNames(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "Spotify AB")
	seedPayee(t, s, "p2", "Spotify AB.")

	seedHistory(t, s, "p1", "a1", -999, "2024-01-03", "2024-02-03")
	seedHistory(t, s, "p2", "a1", -999, "2024-03-03", "2024-04-03")

	got, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "payee variants fold into one counterparty")
	require.Equal(t, 4, got[0].Occurrences)
	require.Equal(t, recur.Monthly, got[0].Config.Frequency)
}

func TestDiscoverNeedsThreeOccurrences(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "One Off Store")

	seedHistory(t, s, "p1", "a1", -500, "2024-01-10", "2024-02-10")

	got, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDiscoverIgnoresIrregularGaps(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "Random Shop")

	seedHistory(t, s, "p1", "a1", -500, "2024-01-01", "2024-01-05", "2024-01-28", "2024-03-19")

	got, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDiscoverSkipsScheduleTaggedTransactions(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "Landlord")

	sid := "s1"
	for i := 0; i < 4; i++ {
		day := time.Date(2024, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC)
		p := "p1"
		require.NoError(t, s.Transactions.Insert(ctx, repository.Transaction{
			ID: fmt.Sprintf("t%d", i), AccountID: "a1", PayeeID: &p,
			Date: day, AmountCents: -120000, ScheduleID: &sid,
		}))
	}

	got, err := s.Discover(ctx)
	require.NoError(t, err)
	require.Empty(t, got, "already-scheduled transactions are not candidates")
}

func TestInferFrequency(t *testing.T) {
	t.Parallel()

	cases := []struct {
		gap      int
		freq     recur.Frequency
		interval int
		ok       bool
	}{
		{1, recur.Daily, 1, true},
		{7, recur.Weekly, 1, true},
		{14, recur.Weekly, 2, true},
		{30, recur.Monthly, 1, true},
		{31, recur.Monthly, 1, true},
		{61, recur.Monthly, 2, true},
		{91, recur.Monthly, 3, true},
		{365, recur.Yearly, 1, true},
		{4, "", 0, false},
		{200, "", 0, false},
	}
	for _, tc := range cases {
		freq, interval, ok := inferFrequency(tc.gap)
		require.Equal(t, tc.ok, ok, "gap %d", tc.gap)
		require.Equal(t, tc.freq, freq, "gap %d", tc.gap)
		require.Equal(t, tc.interval, interval, "gap %d", tc.gap)
	}
}
