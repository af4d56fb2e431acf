package repository

import (
	"context"
	"database/sql"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can take
// part in atomic multi-row batches.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Schedule represents a schedules row.
type Schedule struct {
	ID               string
	RuleID           string
	Name             *string
	Completed        bool
	PostsTransaction bool
	Tombstone        bool
}

// NextDateRecord is the dual-timestamped next-date row for a schedule. The
// base pair is the last value not influenced by a provisional skip; the local
// pair is the most recently computed candidate.
type NextDateRecord struct {
	ScheduleID      string
	BaseNextDate    *time.Time
	BaseNextDateTS  time.Time
	LocalNextDate   *time.Time
	LocalNextDateTS time.Time
}

// Rule represents a rules row; condition and action lists stay JSON-encoded
// here and are decoded by the rules package.
type Rule struct {
	ID           string
	Stage        *string
	ConditionsOp string
	Conditions   string
	Actions      string
	Tombstone    bool
}

// Transaction represents a transactions row.
type Transaction struct {
	ID          string
	AccountID   string
	PayeeID     *string
	Date        time.Time
	AmountCents int64
	ScheduleID  *string
	Cleared     bool
	Tombstone   bool
}

// Account represents an accounts row.
type Account struct {
	ID        string
	Name      string
	Closed    bool
	Tombstone bool
}

// Payee represents a payees row.
type Payee struct {
	ID   string
	Name string
}
