package schedule

import "time"

// Status classifies a schedule relative to today. It is derived on every
// read and never stored.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPaid      Status = "paid"
	StatusDue       Status = "due"
	StatusUpcoming  Status = "upcoming"
	StatusMissed    Status = "missed"
)

// ResolveStatus classifies a schedule. Precedence: completed wins over
// everything, an observed transaction wins over any date math, and only then
// is the next due date compared against today and the upcoming window.
func ResolveStatus(nextDue *time.Time, completed, hasTransaction bool, today time.Time, upcomingWindowDays int) Status {
	switch {
	case completed:
		return StatusCompleted
	case hasTransaction:
		return StatusPaid
	case nextDue == nil:
		return StatusUpcoming
	case nextDue.Before(today):
		return StatusMissed
	case !nextDue.After(today.AddDate(0, 0, upcomingWindowDays)):
		return StatusDue
	default:
		return StatusUpcoming
	}
}
