package schedule

import (
	"context"
	"time"

	"github.com/jask/jasksched/internal/database"
	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/events"
	"github.com/jask/jasksched/internal/recur"
	"github.com/jask/jasksched/internal/rules"
)

// Advancer is the periodic driver: on each completed sync cycle it
// re-evaluates every open schedule, advances recurring schedules that have
// been paid, completes lapsed one-offs, and auto-posts transactions for
// due/missed schedules configured to post.
type Advancer struct {
	Service  *Service
	Notifier events.Notifier
}

// Run consumes sync-completion events until ctx is cancelled or the channel
// closes. Every completion counts — success, error and unauthorized alike —
// but a given calendar day runs at most once.
func (a *Advancer) Run(ctx context.Context, completions <-chan events.Completion) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-completions:
			if !ok {
				return
			}
			if err := a.HandleCompletion(ctx, c); err != nil {
				a.Service.Log.Error("advancement cycle failed", "err", err)
			}
		}
	}
}

// HandleCompletion runs one advancement cycle unless one already ran today.
// The daily gate is the only re-entry control; there is no cancellation of a
// cycle once started.
func (a *Advancer) HandleCompletion(ctx context.Context, c events.Completion) error {
	today := database.Today()
	last, err := a.Service.Prefs.LastScheduleRun(ctx)
	if err != nil {
		return err
	}
	if last.Equal(today) {
		return nil
	}
	if err := a.Service.Prefs.SetLastScheduleRun(ctx, today); err != nil {
		return err
	}
	return a.Advance(ctx, c.Succeeded())
}

// Advance runs one cycle over all open schedules regardless of the daily
// gate. syncedOK tells it whether auto-posting is allowed or should be
// deferred to the offline list. A failure on one schedule is logged and
// skipped; it never aborts the batch.
func (a *Advancer) Advance(ctx context.Context, syncedOK bool) error {
	s := a.Service
	s.mu.Lock()
	defer s.mu.Unlock()

	scheds, err := s.Schedules.ListOpen(ctx)
	if err != nil {
		return err
	}
	window, err := s.Prefs.UpcomingWindowDays(ctx)
	if err != nil {
		return err
	}
	weekend, err := s.Prefs.WeekendDays(ctx)
	if err != nil {
		return err
	}
	today := database.Today()

	var failedPayees []string
	posted := 0

	for _, sched := range scheds {
		_, conds, err := s.ruleForSchedule(ctx, sched)
		if err != nil {
			s.Log.Warn("advance: rule unavailable", "schedule", sched.ID, "err", err)
			continue
		}
		fields, err := rules.Classify(conds)
		if err != nil {
			s.Log.Warn("advance: conditions unreadable", "schedule", sched.ID, "err", err)
			continue
		}
		rec, err := s.NextDates.Get(ctx, sched.ID)
		if err != nil {
			s.Log.Warn("advance: next-date read failed", "schedule", sched.ID, "err", err)
			continue
		}
		var nextDue *time.Time
		if rec != nil {
			nextDue = rec.LocalNextDate
		}

		hasTransaction := false
		if nextDue != nil {
			since := observedSince(*nextDue, fields.Date)
			hasTransaction, err = s.Transactions.HasForScheduleSince(ctx, sched.ID, since)
			if err != nil {
				s.Log.Warn("advance: transaction check failed", "schedule", sched.ID, "err", err)
				continue
			}
		}

		status := ResolveStatus(nextDue, sched.Completed, hasTransaction, today, window)
		switch status {
		case StatusPaid:
			if fields.Date != nil && fields.Date.Value.Recurring() {
				if err := a.advancePaid(ctx, sched.ID, fields.Date.Value, nextDue, weekend); err != nil {
					// Swallowed per schedule: one broken recurrence must not
					// block the rest of the batch.
					s.Log.Warn("advance: next-date advance failed", "schedule", sched.ID, "err", err)
				}
			} else if nextDue != nil && nextDue.Before(today) {
				if err := s.Schedules.SetCompleted(ctx, sched.ID, true); err != nil {
					s.Log.Warn("advance: complete failed", "schedule", sched.ID, "err", err)
				}
			}
		case StatusDue, StatusMissed:
			if !sched.PostsTransaction || fields.Account == "" {
				continue
			}
			if closedAccount(ctx, s, fields.Account) {
				continue
			}
			payee := payeeLabel(ctx, s, sched, fields)
			if !syncedOK {
				failedPayees = append(failedPayees, payee)
				continue
			}
			if err := s.postTransaction(ctx, sched, fields); err != nil {
				s.Log.Warn("advance: posting failed", "schedule", sched.ID, "err", err)
				continue
			}
			posted++
		}
	}

	if len(failedPayees) > 0 {
		a.Notifier.SchedulesOffline(failedPayees)
	}
	if posted > 0 {
		// Announced as a synthetic sync event so transaction views refresh
		// through the same channel real incoming syncs use.
		a.Notifier.SyncEvent([]string{"transactions"})
	}
	return nil
}

// advancePaid moves the local next date to the occurrence after the current
// one. Non-reset: the base pair is untouched.
func (a *Advancer) advancePaid(ctx context.Context, scheduleID string, v recur.DateValue, current *time.Time, weekend recur.WeekendSet) error {
	ref := database.Today()
	if current != nil {
		ref = *current
	}
	next, ok, err := recur.NextDate(v, ref, false, weekend)
	if err != nil {
		return err
	}
	if !ok {
		return nil // bounded pattern exhausted
	}
	return a.Service.NextDates.Advance(ctx, scheduleID, next)
}

func closedAccount(ctx context.Context, s *Service, accountID string) bool {
	acct, err := s.Accounts.Get(ctx, accountID)
	if err != nil || acct == nil {
		return false
	}
	return acct.Closed
}

// payeeLabel picks the friendliest available name for notifications.
func payeeLabel(ctx context.Context, s *Service, sched repository.Schedule, fields rules.ScheduleFields) string {
	if fields.Payee != "" {
		return s.Payees.Name(ctx, fields.Payee)
	}
	if sched.Name != nil && *sched.Name != "" {
		return *sched.Name
	}
	return sched.ID
}
