package repository

import (
	"context"
	"database/sql"
)

// PayeeRepo handles payees.
type PayeeRepo struct {
	q Querier
}

func NewPayeeRepo(db *sql.DB) *PayeeRepo { return &PayeeRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *PayeeRepo) WithTx(tx *sql.Tx) *PayeeRepo { return &PayeeRepo{q: tx} }

func (r *PayeeRepo) Upsert(ctx context.Context, p Payee) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO payees(id, name) VALUES(?, ?)
	ON CONFLICT(id) DO UPDATE SET name=excluded.name;
	`, p.ID, p.Name)
	return err
}

func (r *PayeeRepo) Get(ctx context.Context, id string) (*Payee, error) {
	row := r.q.QueryRowContext(ctx, `SELECT id, name FROM payees WHERE id = ?`, id)
	var p Payee
	if err := row.Scan(&p.ID, &p.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Name returns the payee's display name, or its id when unknown.
func (r *PayeeRepo) Name(ctx context.Context, id string) string {
	p, err := r.Get(ctx, id)
	if err != nil || p == nil {
		return id
	}
	return p.Name
}
