package repository

import (
	"context"
	"database/sql"
)

// PreferenceRepo is the string-keyed preference store.
type PreferenceRepo struct {
	q Querier
}

func NewPreferenceRepo(db *sql.DB) *PreferenceRepo { return &PreferenceRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *PreferenceRepo) WithTx(tx *sql.Tx) *PreferenceRepo { return &PreferenceRepo{q: tx} }

// Get returns the stored value for key, or "" when unset.
func (r *PreferenceRepo) Get(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := r.q.QueryRowContext(ctx, `SELECT value FROM preferences WHERE id = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

func (r *PreferenceRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO preferences(id, value) VALUES(?, ?)
	ON CONFLICT(id) DO UPDATE SET value=excluded.value;
	`, key, value)
	return err
}
