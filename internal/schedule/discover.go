package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/recur"
)

// Candidate is a recurring pattern found in transaction history that has no
// schedule yet. Amounts are the median of the observed group.
type Candidate struct {
	PayeeID     string
	AccountID   string
	AmountCents int64
	Config      recur.Config
	Occurrences int
}

const (
	minOccurrences = 3
	// Payee display names within this normalized levenshtein distance are
	// treated as the same counterparty.
	nameDistanceRatio = 0.25
)

// Discover scans existing transaction history for recurring patterns.
// Transactions already tagged with a schedule are skipped. Grouping is by
// payee, with near-identical payee names folded together by edit distance;
// a frequency is inferred from the median gap between occurrences.
func (s *Service) Discover(ctx context.Context) ([]Candidate, error) {
	history, err := s.Transactions.ListHistory(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]repository.Transaction{}
	var keys []string
	names := map[string]string{}
	for _, t := range history {
		if t.ScheduleID != nil || t.PayeeID == nil {
			continue
		}
		key := s.groupKey(ctx, *t.PayeeID, names, keys)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], t)
	}

	var out []Candidate
	for _, key := range keys {
		if c, ok := candidateFromGroup(groups[key]); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// groupKey folds payees with near-identical names onto one representative id.
func (s *Service) groupKey(ctx context.Context, payeeID string, names map[string]string, keys []string) string {
	name, ok := names[payeeID]
	if !ok {
		name = s.Payees.Name(ctx, payeeID)
		names[payeeID] = name
	}
	for _, existing := range keys {
		other := names[existing]
		if other == "" || name == "" {
			continue
		}
		maxLen := len(name)
		if len(other) > maxLen {
			maxLen = len(other)
		}
		dist := levenshtein.ComputeDistance(name, other)
		if float64(dist)/float64(maxLen) <= nameDistanceRatio {
			return existing
		}
	}
	return payeeID
}

func candidateFromGroup(txs []repository.Transaction) (Candidate, bool) {
	if len(txs) < minOccurrences {
		return Candidate{}, false
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })

	gaps := make([]int, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		gaps = append(gaps, daysBetween(txs[i-1].Date, txs[i].Date))
	}
	freq, interval, ok := inferFrequency(median(gaps))
	if !ok {
		return Candidate{}, false
	}

	amounts := make([]int, len(txs))
	for i, t := range txs {
		amounts[i] = int(t.AmountCents)
	}

	return Candidate{
		PayeeID:     *txs[0].PayeeID,
		AccountID:   txs[len(txs)-1].AccountID,
		AmountCents: int64(median(amounts)),
		Config: recur.Config{
			Start:     recur.FormatDate(txs[len(txs)-1].Date),
			Frequency: freq,
			Interval:  interval,
		},
		Occurrences: len(txs),
	}, true
}

// inferFrequency maps a median day gap onto a recurrence frequency, with
// slack for weekends and month-length drift.
func inferFrequency(gap int) (recur.Frequency, int, bool) {
	switch {
	case gap >= 1 && gap <= 2:
		return recur.Daily, 1, true
	case gap >= 6 && gap <= 8:
		return recur.Weekly, 1, true
	case gap >= 13 && gap <= 16:
		return recur.Weekly, 2, true
	case gap >= 27 && gap <= 33:
		return recur.Monthly, 1, true
	case gap >= 58 && gap <= 64:
		return recur.Monthly, 2, true
	case gap >= 85 && gap <= 97:
		return recur.Monthly, 3, true
	case gap >= 355 && gap <= 375:
		return recur.Yearly, 1, true
	default:
		return "", 0, false
	}
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func median(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}
