package repository

import (
	"context"
	"database/sql"
	"time"
)

// TransactionRepo handles transactions.
type TransactionRepo struct {
	q Querier
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *TransactionRepo) WithTx(tx *sql.Tx) *TransactionRepo { return &TransactionRepo{q: tx} }

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO transactions(id, account_id, payee_id, date, amount, schedule_id, cleared, tombstone)
	VALUES(?, ?, ?, ?, ?, ?, ?, 0);
	`, t.ID, t.AccountID, t.PayeeID, t.Date.Format(dayLayout), t.AmountCents, t.ScheduleID, t.Cleared)
	return err
}

// HasForScheduleSince reports whether a live transaction tagged with the
// schedule exists dated on or after since. This is the "observed" check the
// status resolver feeds on.
func (r *TransactionRepo) HasForScheduleSince(ctx context.Context, scheduleID string, since time.Time) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transactions
	WHERE tombstone = 0 AND schedule_id = ? AND date >= ?`,
		scheduleID, since.Format(dayLayout)).Scan(&count)
	return count > 0, err
}

// ListHistory returns live transactions ordered for pattern discovery:
// grouped by payee, then chronological.
func (r *TransactionRepo) ListHistory(ctx context.Context) ([]Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, account_id, payee_id, date, amount, schedule_id, cleared, tombstone
	FROM transactions WHERE tombstone = 0
	ORDER BY payee_id, date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) ListForSchedule(ctx context.Context, scheduleID string) ([]Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, account_id, payee_id, date, amount, schedule_id, cleared, tombstone
	FROM transactions WHERE tombstone = 0 AND schedule_id = ?
	ORDER BY date DESC, id DESC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var payee, schedule sql.NullString
	var day string
	if err := row.Scan(&t.ID, &t.AccountID, &payee, &day, &t.AmountCents, &schedule, &t.Cleared, &t.Tombstone); err != nil {
		return Transaction{}, err
	}
	d, err := time.Parse(dayLayout, day)
	if err != nil {
		return Transaction{}, err
	}
	t.Date = d
	if payee.Valid {
		t.PayeeID = &payee.String
	}
	if schedule.Valid {
		t.ScheduleID = &schedule.String
	}
	return t, nil
}
