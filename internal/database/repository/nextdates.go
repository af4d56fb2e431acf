package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jask/jasksched/internal/database"
)

const (
	dayLayout = "2006-01-02"
	tsLayout  = time.RFC3339
)

// NextDateRepo maintains the dual-timestamped next-date record per schedule.
// The base/local split is the reconciliation convention that lets concurrent
// peers sharing one data store converge without locking: a merge step can
// compare timestamps to pick the causally later value.
type NextDateRepo struct {
	q Querier
}

func NewNextDateRepo(db *sql.DB) *NextDateRepo { return &NextDateRepo{q: db} }

// WithTx returns a copy bound to tx for atomic batches.
func (r *NextDateRepo) WithTx(tx *sql.Tx) *NextDateRepo { return &NextDateRepo{q: tx} }

func (r *NextDateRepo) Get(ctx context.Context, scheduleID string) (*NextDateRecord, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT schedule_id, base_next_date, base_next_date_ts, local_next_date, local_next_date_ts
	FROM schedules_next_date WHERE schedule_id = ?`, scheduleID)
	rec, err := scanNextDate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Insert creates the record with both pairs collapsed to date at now.
func (r *NextDateRepo) Insert(ctx context.Context, scheduleID string, date time.Time) error {
	now := database.Now().Format(tsLayout)
	day := date.Format(dayLayout)
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO schedules_next_date(schedule_id, base_next_date, base_next_date_ts, local_next_date, local_next_date_ts)
	VALUES(?, ?, ?, ?, ?);
	`, scheduleID, day, now, day, now)
	return err
}

// Advance updates only the local pair, stamping the local timestamp with the
// previous base timestamp rather than "now". That preserves a causal ordering
// token: reconciliation elsewhere can tell whether a remote peer's base is
// newer than the base this advance was derived from. A newDate equal to the
// stored local value is a no-op, avoiding redundant writes and conflict noise.
func (r *NextDateRepo) Advance(ctx context.Context, scheduleID string, newDate time.Time) error {
	rec, err := r.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("next-date record missing for schedule %s", scheduleID)
	}
	day := newDate.Format(dayLayout)
	if rec.LocalNextDate != nil && rec.LocalNextDate.Format(dayLayout) == day {
		return nil
	}
	_, err = r.q.ExecContext(ctx, `
	UPDATE schedules_next_date
	SET local_next_date = ?, local_next_date_ts = ?
	WHERE schedule_id = ?`, day, rec.BaseNextDateTS.Format(tsLayout), scheduleID)
	return err
}

// Reset collapses both pairs to newDate at a fresh timestamp. A newDate equal
// to the stored local value is a no-op.
func (r *NextDateRepo) Reset(ctx context.Context, scheduleID string, newDate time.Time) error {
	rec, err := r.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if rec == nil {
		return r.Insert(ctx, scheduleID, newDate)
	}
	day := newDate.Format(dayLayout)
	if rec.LocalNextDate != nil && rec.LocalNextDate.Format(dayLayout) == day {
		return nil
	}
	now := database.Now().Format(tsLayout)
	_, err = r.q.ExecContext(ctx, `
	UPDATE schedules_next_date
	SET base_next_date = ?, base_next_date_ts = ?, local_next_date = ?, local_next_date_ts = ?
	WHERE schedule_id = ?`, day, now, day, now, scheduleID)
	return err
}

func (r *NextDateRepo) Delete(ctx context.Context, scheduleID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM schedules_next_date WHERE schedule_id = ?`, scheduleID)
	return err
}

func scanNextDate(row scanner) (NextDateRecord, error) {
	var rec NextDateRecord
	var baseDay, localDay, baseTS, localTS sql.NullString
	if err := row.Scan(&rec.ScheduleID, &baseDay, &baseTS, &localDay, &localTS); err != nil {
		return NextDateRecord{}, err
	}
	var err error
	if rec.BaseNextDate, err = parseDay(baseDay); err != nil {
		return NextDateRecord{}, err
	}
	if rec.LocalNextDate, err = parseDay(localDay); err != nil {
		return NextDateRecord{}, err
	}
	if baseTS.Valid {
		if rec.BaseNextDateTS, err = time.Parse(tsLayout, baseTS.String); err != nil {
			return NextDateRecord{}, fmt.Errorf("parse base ts: %w", err)
		}
	}
	if localTS.Valid {
		if rec.LocalNextDateTS, err = time.Parse(tsLayout, localTS.String); err != nil {
			return NextDateRecord{}, fmt.Errorf("parse local ts: %w", err)
		}
	}
	return rec, nil
}

func parseDay(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dayLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse next date %q: %w", v.String, err)
	}
	return &t, nil
}
