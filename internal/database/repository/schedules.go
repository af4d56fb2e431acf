package repository

import (
	"context"
	"database/sql"
)

// ScheduleRepo handles schedules.
type ScheduleRepo struct {
	q Querier
}

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *ScheduleRepo) WithTx(tx *sql.Tx) *ScheduleRepo { return &ScheduleRepo{q: tx} }

func (r *ScheduleRepo) Insert(ctx context.Context, s Schedule) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO schedules(id, rule_id, name, completed, posts_transaction, tombstone)
	VALUES(?, ?, ?, ?, ?, 0);
	`, s.ID, s.RuleID, s.Name, s.Completed, s.PostsTransaction)
	return err
}

func (r *ScheduleRepo) Get(ctx context.Context, id string) (*Schedule, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT id, rule_id, name, completed, posts_transaction, tombstone
	FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Update writes the mutable schedule columns. The rule linkage is immutable
// after creation and deliberately not part of this statement.
func (r *ScheduleRepo) Update(ctx context.Context, s Schedule) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE schedules SET name = ?, completed = ?, posts_transaction = ?
	WHERE id = ?`, s.Name, s.Completed, s.PostsTransaction, s.ID)
	return err
}

func (r *ScheduleRepo) SetCompleted(ctx context.Context, id string, completed bool) error {
	_, err := r.q.ExecContext(ctx, `UPDATE schedules SET completed = ? WHERE id = ?`, completed, id)
	return err
}

// RepairRuleID rebinds a schedule to a freshly synthesized rule. Only the
// self-healing path uses this.
func (r *ScheduleRepo) RepairRuleID(ctx context.Context, id, ruleID string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE schedules SET rule_id = ? WHERE id = ?`, ruleID, id)
	return err
}

func (r *ScheduleRepo) Tombstone(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE schedules SET tombstone = 1 WHERE id = ?`, id)
	return err
}

// ListOpen returns all live, uncompleted schedules.
func (r *ScheduleRepo) ListOpen(ctx context.Context) ([]Schedule, error) {
	return r.list(ctx, `
	SELECT id, rule_id, name, completed, posts_transaction, tombstone
	FROM schedules WHERE tombstone = 0 AND completed = 0 ORDER BY id`)
}

// List returns all live schedules, completed ones included.
func (r *ScheduleRepo) List(ctx context.Context) ([]Schedule, error) {
	return r.list(ctx, `
	SELECT id, rule_id, name, completed, posts_transaction, tombstone
	FROM schedules WHERE tombstone = 0 ORDER BY id`)
}

func (r *ScheduleRepo) list(ctx context.Context, query string) ([]Schedule, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NameExists reports whether another live schedule already uses name.
func (r *ScheduleRepo) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM schedules
	WHERE tombstone = 0 AND name = ? AND id != ?`, name, excludeID).Scan(&count)
	return count > 0, err
}

// AnyLinkedToRule reports whether a live schedule references ruleID.
func (r *ScheduleRepo) AnyLinkedToRule(ctx context.Context, ruleID string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM schedules WHERE tombstone = 0 AND rule_id = ?`, ruleID).Scan(&count)
	return count > 0, err
}

func scanSchedule(row scanner) (Schedule, error) {
	var s Schedule
	var name sql.NullString
	if err := row.Scan(&s.ID, &s.RuleID, &name, &s.Completed, &s.PostsTransaction, &s.Tombstone); err != nil {
		return Schedule{}, err
	}
	if name.Valid {
		s.Name = &name.String
	}
	return s, nil
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}
