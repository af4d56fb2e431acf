package repository

import (
	"context"
	"database/sql"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	q Querier
}

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *AccountRepo) WithTx(tx *sql.Tx) *AccountRepo { return &AccountRepo{q: tx} }

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO accounts(id, name, closed, tombstone)
	VALUES(?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 closed=excluded.closed;
	`, a.ID, a.Name, a.Closed)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT id, name, closed, tombstone FROM accounts WHERE id = ?`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Closed, &a.Tombstone); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, name, closed, tombstone FROM accounts WHERE tombstone = 0 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Closed, &a.Tombstone); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
