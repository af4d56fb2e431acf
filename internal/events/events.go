// Package events carries sync-completion events into the schedule engine and
// outbound notifications back out. Coupling is explicit: the sync layer sends
// Completion values on a channel the engine owns, and the engine talks back
// through a Notifier it was handed at construction.
package events

import "log/slog"

// SyncResult is the outcome a completed sync cycle reports.
type SyncResult string

const (
	SyncSuccess      SyncResult = "success"
	SyncError        SyncResult = "error"
	SyncUnauthorized SyncResult = "unauthorized"
)

// Completion is delivered once per finished sync cycle, whatever the outcome.
type Completion struct {
	Result SyncResult
}

// Succeeded reports whether the cycle applied changes.
func (c Completion) Succeeded() bool { return c.Result == SyncSuccess }

// Notifier receives the engine's outbound notifications.
type Notifier interface {
	// SchedulesOffline reports payees whose auto-posting was skipped because
	// the last sync cycle failed. The next successful cycle retries naturally.
	SchedulesOffline(payees []string)
	// SyncEvent announces table changes as a synthetic applied-sync event so
	// dependent views refresh through the same channel real syncs use.
	SyncEvent(tables []string)
}

// LogNotifier writes notifications to a structured logger. It stands in for
// a real message transport in the CLI.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) SchedulesOffline(payees []string) {
	n.Log.Warn("offline, schedules pending", "payees", payees)
}

func (n *LogNotifier) SyncEvent(tables []string) {
	n.Log.Info("sync event", "tables", tables)
}
