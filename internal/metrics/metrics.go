// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Expense lifecycle metrics
	IncExpenseCreated()
	IncExpenseUpdated()
	IncExpenseDeleted()

	// Media store metrics
	IncMediaStored()
	IncMediaRemoved()
	IncMediaRemoveFailed()

	// Report metrics
	IncReportRendered(format string) // format: "pdf" or "csv"
	ObserveReportDuration(duration time.Duration)

	// Auth metrics
	IncLoginFailed()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
