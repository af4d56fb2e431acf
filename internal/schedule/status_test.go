package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveStatus(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	inWindow := today.AddDate(0, 0, 7)
	beyondWindow := today.AddDate(0, 0, 8)

	cases := []struct {
		name     string
		next     *time.Time
		complete bool
		hasTxn   bool
		want     Status
	}{
		{"completed wins over everything", &yesterday, true, true, StatusCompleted},
		{"observed transaction wins over date math", &yesterday, false, true, StatusPaid},
		{"no due date reads upcoming", nil, false, false, StatusUpcoming},
		{"past due date reads missed", &yesterday, false, false, StatusMissed},
		{"due today", &today, false, false, StatusDue},
		{"due at window edge", &inWindow, false, false, StatusDue},
		{"beyond window reads upcoming", &beyondWindow, false, false, StatusUpcoming},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStatus(tc.next, tc.complete, tc.hasTxn, today, 7)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveStatusZeroWindow(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	require.Equal(t, StatusDue, ResolveStatus(&today, false, false, today, 0))
	require.Equal(t, StatusUpcoming, ResolveStatus(&tomorrow, false, false, today, 0))
}
