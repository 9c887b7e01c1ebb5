package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncExpenseCreated is a no-op.
func (n *NoopRecorder) IncExpenseCreated() {}

// IncExpenseUpdated is a no-op.
func (n *NoopRecorder) IncExpenseUpdated() {}

// IncExpenseDeleted is a no-op.
func (n *NoopRecorder) IncExpenseDeleted() {}

// IncMediaStored is a no-op.
func (n *NoopRecorder) IncMediaStored() {}

// IncMediaRemoved is a no-op.
func (n *NoopRecorder) IncMediaRemoved() {}

// IncMediaRemoveFailed is a no-op.
func (n *NoopRecorder) IncMediaRemoveFailed() {}

// IncReportRendered is a no-op.
func (n *NoopRecorder) IncReportRendered(format string) {}

// ObserveReportDuration is a no-op.
func (n *NoopRecorder) ObserveReportDuration(duration time.Duration) {}

// IncLoginFailed is a no-op.
func (n *NoopRecorder) IncLoginFailed() {}
