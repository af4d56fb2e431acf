package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ErrRuleLinked is returned when a rule still referenced by a live schedule
// would be tombstoned outside the schedule lifecycle. Deleting such a rule
// directly would orphan the schedule, so the repo refuses.
var ErrRuleLinked = errors.New("rule is linked to a schedule")

// RuleRepo handles rules.
type RuleRepo struct {
	q Querier
}

func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *RuleRepo) WithTx(tx *sql.Tx) *RuleRepo { return &RuleRepo{q: tx} }

func (r *RuleRepo) Insert(ctx context.Context, rule Rule) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO rules(id, stage, conditions_op, conditions, actions, tombstone)
	VALUES(?, ?, ?, ?, ?, 0);
	`, rule.ID, rule.Stage, rule.ConditionsOp, rule.Conditions, rule.Actions)
	return err
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*Rule, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT id, stage, conditions_op, conditions, actions, tombstone
	FROM rules WHERE id = ? AND tombstone = 0`, id)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepo) Update(ctx context.Context, rule Rule) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE rules SET stage = ?, conditions_op = ?, conditions = ?, actions = ?
	WHERE id = ?`, rule.Stage, rule.ConditionsOp, rule.Conditions, rule.Actions, rule.ID)
	return err
}

// Tombstone soft-deletes a rule after checking nothing live still links to
// it. ForceTombstone skips the check for the schedule lifecycle, which
// removes the rule and its schedule as one unit.
func (r *RuleRepo) Tombstone(ctx context.Context, id string) error {
	schedules := &ScheduleRepo{q: r.q}
	linked, err := schedules.AnyLinkedToRule(ctx, id)
	if err != nil {
		return err
	}
	if linked {
		return ErrRuleLinked
	}
	return r.ForceTombstone(ctx, id)
}

func (r *RuleRepo) ForceTombstone(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE rules SET tombstone = 1 WHERE id = ?`, id)
	return err
}

func (r *RuleRepo) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, stage, conditions_op, conditions, actions, tombstone
	FROM rules WHERE tombstone = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (Rule, error) {
	var rule Rule
	var stage sql.NullString
	if err := row.Scan(&rule.ID, &stage, &rule.ConditionsOp, &rule.Conditions, &rule.Actions, &rule.Tombstone); err != nil {
		return Rule{}, err
	}
	if stage.Valid {
		rule.Stage = &stage.String
	}
	return rule, nil
}
