package schedule

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jask/jasksched/internal/database"
	"github.com/jask/jasksched/internal/database/repository"
	"github.com/jask/jasksched/internal/prefs"
	"github.com/jask/jasksched/internal/recur"
	"github.com/jask/jasksched/internal/rules"
)

// Service owns the schedule lifecycle: every schedule has exactly one linking
// rule and one next-date record, created together and destroyed together, and
// mutated only through these operations. A single mutex serializes mutations;
// cross-device concurrency is handled by the next-date store's dual-timestamp
// convention, not by locking.
type Service struct {
	DB           *sql.DB
	Schedules    *repository.ScheduleRepo
	NextDates    *repository.NextDateRepo
	Rules        *repository.RuleRepo
	Transactions *repository.TransactionRepo
	Accounts     *repository.AccountRepo
	Payees       *repository.PayeeRepo
	Prefs        *prefs.Store
	Log          *slog.Logger

	mu sync.Mutex
}

// NewService wires a service over db. All collaborators are held explicitly;
// there is no package-level registry.
func NewService(db *sql.DB, log *slog.Logger) *Service {
	return &Service{
		DB:           db,
		Schedules:    repository.NewScheduleRepo(db),
		NextDates:    repository.NewNextDateRepo(db),
		Rules:        repository.NewRuleRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Accounts:     repository.NewAccountRepo(db),
		Payees:       repository.NewPayeeRepo(db),
		Prefs:        &prefs.Store{Prefs: repository.NewPreferenceRepo(db)},
		Log:          log,
	}
}

// CreateRequest describes a new schedule. A client-supplied ID is honored
// when present.
type CreateRequest struct {
	ID               string            `json:"id,omitempty"`
	Name             *string           `json:"name,omitempty"`
	PostsTransaction bool              `json:"postsTransaction,omitempty"`
	Conditions       []rules.Condition `json:"conditions"`
}

// ScheduleEdit carries the mutable schedule attributes for Update. Rule is
// accepted only so its presence can be rejected: linkage is immutable.
type ScheduleEdit struct {
	ID               string  `json:"id"`
	Rule             string  `json:"rule,omitempty"`
	Name             *string `json:"name,omitempty"`
	PostsTransaction *bool   `json:"postsTransaction,omitempty"`
	Completed        *bool   `json:"completed,omitempty"`
}

// UpdateRequest describes an edit to an existing schedule.
type UpdateRequest struct {
	Schedule      ScheduleEdit      `json:"schedule"`
	Conditions    []rules.Condition `json:"conditions,omitempty"`
	ResetNextDate bool              `json:"resetNextDate,omitempty"`
}

// Create validates the conditions, synthesizes the linking rule, and writes
// rule, schedule and next-date record as one atomic batch. Returns the new
// schedule id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := classifyForWrite(req.Conditions)
	if err != nil {
		return "", err
	}

	if req.Name != nil && *req.Name != "" {
		exists, err := s.Schedules.NameExists(ctx, *req.Name, req.ID)
		if err != nil {
			return "", err
		}
		if exists {
			return "", validationf("there is already a schedule named %q", *req.Name)
		}
	}

	next, err := s.initialNextDate(ctx, fields.Date)
	if err != nil {
		return "", err
	}

	scheduleID := req.ID
	if scheduleID == "" {
		scheduleID = uuid.NewString()
	}
	ruleID := uuid.NewString()

	conds, err := rules.EncodeConditions(req.Conditions)
	if err != nil {
		return "", err
	}
	actions, err := rules.EncodeActions([]rules.Action{{Op: rules.ActionLinkSchedule, Value: scheduleID}})
	if err != nil {
		return "", err
	}

	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := s.Rules.WithTx(tx).Insert(ctx, repository.Rule{
			ID:           ruleID,
			ConditionsOp: "and",
			Conditions:   conds,
			Actions:      actions,
		}); err != nil {
			return err
		}
		if err := s.Schedules.WithTx(tx).Insert(ctx, repository.Schedule{
			ID:               scheduleID,
			RuleID:           ruleID,
			Name:             req.Name,
			PostsTransaction: req.PostsTransaction,
		}); err != nil {
			return err
		}
		return s.NextDates.WithTx(tx).Insert(ctx, scheduleID, next)
	})
	if err != nil {
		return "", err
	}
	return scheduleID, nil
}

// Update edits a schedule and, when conditions are supplied, merges them into
// the linking rule's condition list positionally: same field replaced in
// place, new fields appended, untouched conditions preserved. The next date
// is force-reset when the caller asks, the account condition changed, or the
// date condition substantively changed.
func (s *Service) Update(ctx context.Context, req UpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Schedule.Rule != "" {
		return validationf("cannot change the rule of a schedule; rule linkage is fixed at creation")
	}

	sched, err := s.Schedules.Get(ctx, req.Schedule.ID)
	if err != nil {
		return err
	}
	if sched == nil || sched.Tombstone {
		return validationf("schedule %s not found", req.Schedule.ID)
	}

	if req.Schedule.Name != nil && *req.Schedule.Name != "" {
		exists, err := s.Schedules.NameExists(ctx, *req.Schedule.Name, sched.ID)
		if err != nil {
			return err
		}
		if exists {
			return validationf("there is already a schedule named %q", *req.Schedule.Name)
		}
	}

	rule, oldConds, err := s.ruleForSchedule(ctx, *sched)
	if err != nil {
		return err
	}

	merged := oldConds
	resetNext := req.ResetNextDate
	if len(req.Conditions) > 0 {
		// Partial condition sets are fine on update; a supplied date
		// condition still has to decode.
		if dateCond, ok := rules.ConditionByField(req.Conditions, rules.FieldDate); ok {
			if len(dateCond.Value) == 0 || string(dateCond.Value) == "null" {
				return validationf("date condition requires a value")
			}
			if _, err := rules.DecodeDate(dateCond); err != nil {
				return &ValidationError{Msg: err.Error()}
			}
		}
		merged = rules.MergeConditions(oldConds, req.Conditions)

		if newAcct, ok := rules.ConditionByField(req.Conditions, rules.FieldAccount); ok {
			oldAcct, _ := rules.ConditionByField(oldConds, rules.FieldAccount)
			if !rules.Equivalent(oldAcct, newAcct) {
				resetNext = true
			}
		}
		if newDate, ok := rules.ConditionByField(req.Conditions, rules.FieldDate); ok {
			oldDate, _ := rules.ConditionByField(oldConds, rules.FieldDate)
			if !rules.Equivalent(oldDate, newDate) {
				resetNext = true
			}
		}
	}

	var next time.Time
	if resetNext {
		mergedFields, err := rules.Classify(merged)
		if err != nil {
			return err
		}
		if mergedFields.Date == nil {
			return validationf("schedule %s has no date condition to reset from", sched.ID)
		}
		next, err = s.initialNextDate(ctx, mergedFields.Date)
		if err != nil {
			return err
		}
	}

	if req.Schedule.Name != nil {
		sched.Name = req.Schedule.Name
	}
	if req.Schedule.PostsTransaction != nil {
		sched.PostsTransaction = *req.Schedule.PostsTransaction
	}
	if req.Schedule.Completed != nil {
		sched.Completed = *req.Schedule.Completed
	}

	condsRaw, err := rules.EncodeConditions(merged)
	if err != nil {
		return err
	}

	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		rule.Conditions = condsRaw
		if err := s.Rules.WithTx(tx).Update(ctx, *rule); err != nil {
			return err
		}
		if err := s.Schedules.WithTx(tx).Update(ctx, *sched); err != nil {
			return err
		}
		if resetNext {
			return s.NextDates.WithTx(tx).Reset(ctx, sched.ID, next)
		}
		return nil
	})
}

// Delete removes the schedule, its linking rule, and its next-date record as
// one atomic unit.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, err := s.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if sched == nil || sched.Tombstone {
		return validationf("schedule %s not found", id)
	}
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := s.Rules.WithTx(tx).ForceTombstone(ctx, sched.RuleID); err != nil {
			return err
		}
		if err := s.Schedules.WithTx(tx).Tombstone(ctx, id); err != nil {
			return err
		}
		return s.NextDates.WithTx(tx).Delete(ctx, id)
	})
}

// SkipNextDate advances past the current occurrence without marking it paid:
// a non-reset advance to the next occurrence after current+1 day. One-off
// schedules have nothing to skip to, so nothing is written for them.
func (s *Service) SkipNextDate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipNextDate(ctx, id)
}

func (s *Service) skipNextDate(ctx context.Context, id string) error {
	sched, err := s.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if sched == nil || sched.Tombstone {
		return validationf("schedule %s not found", id)
	}
	_, conds, err := s.ruleForSchedule(ctx, *sched)
	if err != nil {
		return err
	}
	fields, err := rules.Classify(conds)
	if err != nil {
		return err
	}
	if fields.Date == nil {
		return validationf("schedule %s has no date condition", id)
	}

	rec, err := s.NextDates.Get(ctx, id)
	if err != nil {
		return err
	}
	current := database.Today()
	if rec != nil && rec.LocalNextDate != nil {
		current = *rec.LocalNextDate
	}

	weekend, err := s.Prefs.WeekendDays(ctx)
	if err != nil {
		return err
	}
	next, ok, err := recur.NextDate(fields.Date.Value, current.AddDate(0, 0, 1), true, weekend)
	if err != nil {
		s.Log.Error("skip: recurrence evaluation failed", "schedule", id, "err", err)
		return err
	}
	if !ok {
		return nil
	}
	return s.NextDates.Advance(ctx, id, next)
}

// PostTransaction creates the schedule's transaction by hand: dated today,
// uncleared, tagged with the schedule id, amount resolved from the amount
// condition.
func (s *Service) PostTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, err := s.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if sched == nil || sched.Tombstone {
		return validationf("schedule %s not found", id)
	}
	_, conds, err := s.ruleForSchedule(ctx, *sched)
	if err != nil {
		return err
	}
	fields, err := rules.Classify(conds)
	if err != nil {
		return err
	}
	return s.postTransaction(ctx, *sched, fields)
}

func (s *Service) postTransaction(ctx context.Context, sched repository.Schedule, fields rules.ScheduleFields) error {
	if fields.Account == "" {
		return validationf("schedule %s has no account to post to", sched.ID)
	}
	t := repository.Transaction{
		ID:          uuid.NewString(),
		AccountID:   fields.Account,
		Date:        database.Today(),
		AmountCents: rules.ResolveAmount(fields.Amount),
		ScheduleID:  &sched.ID,
	}
	if fields.Payee != "" {
		payee := fields.Payee
		t.PayeeID = &payee
	}
	return s.Transactions.Insert(ctx, t)
}

// GetUpcomingDates returns the next count occurrence dates for a recurrence
// config, starting from today, with the weekend-skip policy applied.
// Malformed configs are logged with the offending configuration and the
// error is returned to the caller.
func (s *Service) GetUpcomingDates(ctx context.Context, cfg recur.Config, count int) ([]string, error) {
	weekend, err := s.Prefs.WeekendDays(ctx)
	if err != nil {
		return nil, err
	}
	dates, err := recur.UpcomingDates(recur.DateValue{Recur: &cfg}, count, database.Today(), weekend)
	if err != nil {
		s.Log.Error("recurrence config rejected", "config", cfg, "err", err)
		return nil, err
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = recur.FormatDate(d)
	}
	return out, nil
}

// Info is a schedule joined with its derived state for read surfaces.
type Info struct {
	Schedule repository.Schedule
	NextDue  *time.Time
	Status   Status
	Payee    string
	Account  string
	Amount   int64
}

// ListWithStatus resolves status for every live schedule.
func (s *Service) ListWithStatus(ctx context.Context) ([]Info, error) {
	scheds, err := s.Schedules.List(ctx)
	if err != nil {
		return nil, err
	}
	window, err := s.Prefs.UpcomingWindowDays(ctx)
	if err != nil {
		return nil, err
	}
	today := database.Today()

	var out []Info
	for _, sched := range scheds {
		info, err := s.resolve(ctx, sched, today, window)
		if err != nil {
			s.Log.Warn("skipping unresolvable schedule", "schedule", sched.ID, "err", err)
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// resolve derives one schedule's joined state.
func (s *Service) resolve(ctx context.Context, sched repository.Schedule, today time.Time, window int) (Info, error) {
	_, conds, err := s.ruleForSchedule(ctx, sched)
	if err != nil {
		return Info{}, err
	}
	fields, err := rules.Classify(conds)
	if err != nil {
		return Info{}, err
	}
	rec, err := s.NextDates.Get(ctx, sched.ID)
	if err != nil {
		return Info{}, err
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
			return Info{}, err
		}
	}

	return Info{
		Schedule: sched,
		NextDue:  nextDue,
		Status:   ResolveStatus(nextDue, sched.Completed, hasTransaction, today, window),
		Payee:    fields.Payee,
		Account:  fields.Account,
		Amount:   rules.ResolveAmount(fields.Amount),
	}, nil
}

// observedSince picks the cutoff for the "has a matching transaction
// appeared" check: the due date itself for exact one-off dates, a couple of
// days of slack otherwise so early payments still count.
func observedSince(next time.Time, dc *rules.DateCondition) time.Time {
	if dc != nil && !dc.Value.Recurring() && dc.Op == rules.OpIs {
		return next
	}
	return next.AddDate(0, 0, -2)
}

// ruleForSchedule loads the schedule's linking rule, repairing broken
// linkage on the way: a missing rule is replaced by a synthesized one and a
// missing link action is re-added. Callers never see the corruption.
func (s *Service) ruleForSchedule(ctx context.Context, sched repository.Schedule) (*repository.Rule, []rules.Condition, error) {
	rule, err := s.Rules.Get(ctx, sched.RuleID)
	if err != nil {
		return nil, nil, err
	}
	if rule != nil {
		conds, condErr := rules.DecodeConditions(rule.Conditions)
		if condErr == nil {
			actions, _ := rules.DecodeActions(rule.Actions)
			if linked, ok := rules.LinkedScheduleID(actions); !ok || linked != sched.ID {
				actions = append(actions, rules.Action{Op: rules.ActionLinkSchedule, Value: sched.ID})
				raw, err := rules.EncodeActions(actions)
				if err != nil {
					return nil, nil, err
				}
				rule.Actions = raw
				if err := s.Rules.Update(ctx, *rule); err != nil {
					return nil, nil, err
				}
				s.Log.Warn("re-linked rule to schedule", "schedule", sched.ID, "rule", rule.ID)
			}
			return rule, conds, nil
		}
		s.Log.Warn("rule conditions unreadable, synthesizing replacement", "schedule", sched.ID, "rule", rule.ID, "err", condErr)
	} else {
		s.Log.Warn("linking rule missing, synthesizing replacement", "schedule", sched.ID, "rule", sched.RuleID)
	}
	return s.repairRule(ctx, sched)
}

// repairRule synthesizes a replacement linking rule: a near-today approximate
// date and a zero-amount approximation, linked by a fresh link action.
func (s *Service) repairRule(ctx context.Context, sched repository.Schedule) (*repository.Rule, []rules.Condition, error) {
	dateCond, err := rules.EncodeDate(rules.DateCondition{
		Op:    rules.OpIsApprox,
		Value: recur.DateValue{Date: database.Today()},
	})
	if err != nil {
		return nil, nil, err
	}
	conds := []rules.Condition{dateCond, rules.AmountCents(rules.OpIsApprox, 0)}

	condsRaw, err := rules.EncodeConditions(conds)
	if err != nil {
		return nil, nil, err
	}
	actionsRaw, err := rules.EncodeActions([]rules.Action{{Op: rules.ActionLinkSchedule, Value: sched.ID}})
	if err != nil {
		return nil, nil, err
	}

	rule := repository.Rule{
		ID:           uuid.NewString(),
		ConditionsOp: "and",
		Conditions:   condsRaw,
		Actions:      actionsRaw,
	}
	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := s.Rules.WithTx(tx).Insert(ctx, rule); err != nil {
			return err
		}
		return s.Schedules.WithTx(tx).RepairRuleID(ctx, sched.ID, rule.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	return &rule, conds, nil
}

// initialNextDate computes the date a fresh or reset schedule is next due.
// Recurring values land on the first occurrence on or after today; a literal
// date is kept even when past so a lapsed one-off still reads as missed.
func (s *Service) initialNextDate(ctx context.Context, dc *rules.DateCondition) (time.Time, error) {
	weekend, err := s.Prefs.WeekendDays(ctx)
	if err != nil {
		return time.Time{}, err
	}
	today := database.Today()
	next, ok, err := recur.NextDate(dc.Value, today, true, weekend)
	if err != nil {
		s.Log.Error("recurrence config rejected", "config", dc.Value.Recur, "err", err)
		return time.Time{}, err
	}
	if ok {
		return next, nil
	}
	if !dc.Value.Recurring() {
		return dc.Value.Date, nil
	}
	start, err := recur.ParseDate(dc.Value.Recur.Start)
	if err != nil {
		return time.Time{}, err
	}
	return start, nil
}

// classifyForWrite validates a condition set destined for a rule write.
func classifyForWrite(conds []rules.Condition) (rules.ScheduleFields, error) {
	dateCond, ok := rules.ConditionByField(conds, rules.FieldDate)
	if !ok {
		return rules.ScheduleFields{}, validationf("schedule is missing a date condition")
	}
	if len(dateCond.Value) == 0 || string(dateCond.Value) == "null" {
		return rules.ScheduleFields{}, validationf("date condition requires a value")
	}
	fields, err := rules.Classify(conds)
	if err != nil {
		return rules.ScheduleFields{}, &ValidationError{Msg: err.Error()}
	}
	if fields.Date == nil {
		return rules.ScheduleFields{}, validationf("schedule is missing a date condition")
	}
	return fields, nil
}
