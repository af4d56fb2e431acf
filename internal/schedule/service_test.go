package schedule

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/jasksched/internal/database"
	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/prefs"
	"github.com/jask/jasksched/internal/recur"
	"github.com/jask/jasksched/internal/rules"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dateCondLiteral(t *testing.T, day time.Time) rules.Condition {
	t.Helper()
	c, err := rules.EncodeDate(rules.DateCondition{Op: rules.OpIs, Value: recur.DateValue{Date: day}})
	require.NoError(t, err)
	return c
}

func dateCondRecur(t *testing.T, cfg recur.Config) rules.Condition {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return rules.Condition{Field: rules.FieldDate, Op: rules.OpIsApprox, Value: raw, Type: "date"}
}

func strp(s string) *string { return &s }

func seedAccount(t *testing.T, s *Service, id, name string, closed bool) {
	t.Helper()
	require.NoError(t, s.Accounts.Upsert(context.Background(), repository.Account{ID: id, Name: name, Closed: closed}))
}

func seedPayee(t *testing.T, s *Service, id, name string) {
	t.Helper()
	require.NoError(t, s.Payees.Upsert(context.Background(), repository.Payee{ID: id, Name: name}))
}

func TestCreateWritesRuleScheduleAndNextDate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{
		Name: strp("Rent"),
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Weekly}),
			rules.StringCondition(rules.FieldAccount, "a1"),
			rules.AmountCents(rules.OpIs, -120000),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sched)
	require.Equal(t, "Rent", *sched.Name)

	rule, err := s.Rules.Get(ctx, sched.RuleID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	actions, err := rules.DecodeActions(rule.Actions)
	require.NoError(t, err)
	linked, ok := rules.LinkedScheduleID(actions)
	require.True(t, ok)
	require.Equal(t, id, linked)

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	// weekly anchored at today starts due today
	require.Equal(t, today, *rec.LocalNextDate)
	require.Equal(t, today, *rec.BaseNextDate)
}

func TestCreateHonorsClientID(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{
		ID:         "sched-42",
		Conditions: []rules.Condition{dateCondLiteral(t, database.Today())},
	})
	require.NoError(t, err)
	require.Equal(t, "sched-42", id)
}

func TestCreateWithoutDateWritesNothing(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateRequest{
		Name:       strp("Broken"),
		Conditions: []rules.Condition{rules.StringCondition(rules.FieldPayee, "p1")},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	scheds, err := s.Schedules.List(ctx)
	require.NoError(t, err)
	require.Empty(t, scheds)
	rs, err := s.Rules.List(ctx)
	require.NoError(t, err)
	require.Empty(t, rs)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cond := dateCondLiteral(t, database.Today())

	_, err := s.Create(ctx, CreateRequest{Name: strp("Rent"), Conditions: []rules.Condition{cond}})
	require.NoError(t, err)

	_, err = s.Create(ctx, CreateRequest{Name: strp("Rent"), Conditions: []rules.Condition{cond}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateKeepsPastLiteralDate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	past := database.Today().AddDate(0, 0, -30)

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, past)}})
	require.NoError(t, err)

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	// a lapsed one-off keeps its date so it reads as missed, not upcoming
	require.Equal(t, past, *rec.LocalNextDate)

	infos, err := s.ListWithStatus(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, StatusMissed, infos[0].Status)
}

func TestUpdateRejectsRuleRebind(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, database.Today())}})
	require.NoError(t, err)

	err = s.Update(ctx, UpdateRequest{Schedule: ScheduleEdit{ID: id, Rule: "some-other-rule"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpdateRenameLeavesNextDateAlone(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{
		Name: strp("Gym"),
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Monthly}),
		},
	})
	require.NoError(t, err)
	before, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)

	posts := true
	require.NoError(t, s.Update(ctx, UpdateRequest{
		Schedule: ScheduleEdit{ID: id, Name: strp("Gym Membership"), PostsTransaction: &posts},
	}))

	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Gym Membership", *sched.Name)
	require.True(t, sched.PostsTransaction)

	after, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdateDateChangeResetsNextDate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Weekly}),
		},
	})
	require.NoError(t, err)

	// push the local pair forward so a reset is observable
	require.NoError(t, s.NextDates.Advance(ctx, id, today.AddDate(0, 0, 7)))

	newStart := today.AddDate(0, 0, 3)
	require.NoError(t, s.Update(ctx, UpdateRequest{
		Schedule: ScheduleEdit{ID: id},
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(newStart), Frequency: recur.Weekly}),
		},
	}))

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, newStart, *rec.BaseNextDate)
	require.Equal(t, newStart, *rec.LocalNextDate)
	require.Equal(t, rec.BaseNextDateTS, rec.LocalNextDateTS)
}

func TestUpdateEquivalentDateDoesNotReset(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()
	cfg := recur.Config{Start: recur.FormatDate(today), Frequency: recur.Weekly}

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondRecur(t, cfg)}})
	require.NoError(t, err)
	require.NoError(t, s.NextDates.Advance(ctx, id, today.AddDate(0, 0, 7)))
	before, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)

	// resubmitting the same date condition is not a substantive change
	require.NoError(t, s.Update(ctx, UpdateRequest{
		Schedule:   ScheduleEdit{ID: id},
		Conditions: []rules.Condition{dateCondRecur(t, cfg)},
	}))

	after, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdateAccountChangeResetsNextDate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Weekly}),
			rules.StringCondition(rules.FieldAccount, "a1"),
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.NextDates.Advance(ctx, id, today.AddDate(0, 0, 7)))

	require.NoError(t, s.Update(ctx, UpdateRequest{
		Schedule:   ScheduleEdit{ID: id},
		Conditions: []rules.Condition{rules.StringCondition(rules.FieldAccount, "a2")},
	}))

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, today, *rec.LocalNextDate, "account move resets to the recurrence's own next date")
}

func TestUpdateMergePreservesUnrelatedConditions(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	notes := rules.Condition{Field: rules.FieldNotes, Op: rules.OpContains, Value: json.RawMessage(`"invoice"`)}
	id, err := s.Create(ctx, CreateRequest{
		Conditions: []rules.Condition{dateCondLiteral(t, database.Today()), notes},
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, UpdateRequest{
		Schedule:   ScheduleEdit{ID: id},
		Conditions: []rules.Condition{rules.AmountCents(rules.OpIs, -500)},
	}))

	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	rule, err := s.Rules.Get(ctx, sched.RuleID)
	require.NoError(t, err)
	conds, err := rules.DecodeConditions(rule.Conditions)
	require.NoError(t, err)
	require.Len(t, conds, 3)
	got, ok := rules.ConditionByField(conds, rules.FieldNotes)
	require.True(t, ok)
	require.Equal(t, notes.Value, got.Value)
}

func TestDeleteRemovesAllThreeRows(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, database.Today())}})
	require.NoError(t, err)
	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	ruleID := sched.RuleID

	require.NoError(t, s.Delete(ctx, id))

	sched, err = s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, sched.Tombstone)

	rule, err := s.Rules.Get(ctx, ruleID)
	require.NoError(t, err)
	require.Nil(t, rule)

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, rec)

	// deleting twice reports not found rather than succeeding silently
	err = s.Delete(ctx, id)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSkipNextDateAdvancesWithoutReset(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{
		Conditions: []rules.Condition{
			dateCondRecur(t, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Weekly}),
		},
	})
	require.NoError(t, err)
	before, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.SkipNextDate(ctx, id))

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, today.AddDate(0, 0, 7), *rec.LocalNextDate)
	require.Equal(t, today, *rec.BaseNextDate)
	require.Equal(t, before.BaseNextDateTS, rec.BaseNextDateTS)
}

func TestSkipNextDateOneOffIsNoop(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, today)}})
	require.NoError(t, err)

	require.NoError(t, s.SkipNextDate(ctx, id))

	rec, err := s.NextDates.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, today, *rec.LocalNextDate, "a one-off has nothing to skip to")
}

func TestPostTransaction(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "Checking", false)
	seedPayee(t, s, "p1", "Landlord")

	id, err := s.Create(ctx, CreateRequest{
		Conditions: []rules.Condition{
			dateCondLiteral(t, database.Today()),
			rules.StringCondition(rules.FieldAccount, "a1"),
			rules.StringCondition(rules.FieldPayee, "p1"),
			rules.AmountCents(rules.OpIsApprox, -120000),
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.PostTransaction(ctx, id))

	txns, err := s.Transactions.ListForSchedule(ctx, id)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, "a1", txns[0].AccountID)
	require.Equal(t, "p1", *txns[0].PayeeID)
	require.Equal(t, int64(-120000), txns[0].AmountCents)
	require.Equal(t, database.Today(), txns[0].Date)
	require.False(t, txns[0].Cleared)

	// the posted transaction flips the schedule to paid
	infos, err := s.ListWithStatus(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, StatusPaid, infos[0].Status)
}

func TestPostTransactionRequiresAccount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, database.Today())}})
	require.NoError(t, err)

	err = s.PostTransaction(ctx, id)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSelfHealMissingRule(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{Name: strp("Rent"), Conditions: []rules.Condition{dateCondLiteral(t, database.Today())}})
	require.NoError(t, err)
	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	oldRule := sched.RuleID

	// simulate divergence: the linking rule vanishes out from under the schedule
	require.NoError(t, s.Rules.ForceTombstone(ctx, oldRule))

	infos, err := s.ListWithStatus(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1, "reads keep working through the repair")

	sched, err = s.Schedules.Get(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, oldRule, sched.RuleID)

	rule, err := s.Rules.Get(ctx, sched.RuleID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	actions, err := rules.DecodeActions(rule.Actions)
	require.NoError(t, err)
	linked, ok := rules.LinkedScheduleID(actions)
	require.True(t, ok)
	require.Equal(t, id, linked)
	conds, err := rules.DecodeConditions(rule.Conditions)
	require.NoError(t, err)
	fields, err := rules.Classify(conds)
	require.NoError(t, err)
	require.NotNil(t, fields.Date, "synthesized rule carries a usable date condition")
	require.NotNil(t, fields.Amount)
}

func TestSelfHealRelinksMissingAction(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, database.Today())}})
	require.NoError(t, err)
	sched, err := s.Schedules.Get(ctx, id)
	require.NoError(t, err)

	rule, err := s.Rules.Get(ctx, sched.RuleID)
	require.NoError(t, err)
	rule.Actions = "[]"
	require.NoError(t, s.Rules.Update(ctx, *rule))

	_, err = s.ListWithStatus(ctx)
	require.NoError(t, err)

	rule, err = s.Rules.Get(ctx, sched.RuleID)
	require.NoError(t, err)
	actions, err := rules.DecodeActions(rule.Actions)
	require.NoError(t, err)
	linked, ok := rules.LinkedScheduleID(actions)
	require.True(t, ok)
	require.Equal(t, id, linked)
}

func TestGetUpcomingDates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	today := database.Today()

	got, err := s.GetUpcomingDates(ctx, recur.Config{Start: recur.FormatDate(today), Frequency: recur.Daily}, 3)
	require.NoError(t, err)
	require.Equal(t, []string{
		recur.FormatDate(today),
		recur.FormatDate(today.AddDate(0, 0, 1)),
		recur.FormatDate(today.AddDate(0, 0, 2)),
	}, got)

	_, err = s.GetUpcomingDates(ctx, recur.Config{Start: "garbage", Frequency: recur.Daily}, 3)
	var cerr *recur.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestListWithStatusUsesWindowPreference(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	inEight := database.Today().AddDate(0, 0, 8)

	_, err := s.Create(ctx, CreateRequest{Conditions: []rules.Condition{dateCondLiteral(t, inEight)}})
	require.NoError(t, err)

	infos, err := s.ListWithStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusUpcoming, infos[0].Status, "outside the default 7-day window")

	require.NoError(t, s.Prefs.Prefs.Set(ctx, prefs.KeyUpcomingLength, "14"))
	infos, err = s.ListWithStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusDue, infos[0].Status)
}
