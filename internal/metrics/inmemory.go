package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ExpensesCreated       uint64
	ExpensesUpdated       uint64
	ExpensesDeleted       uint64
	MediaStored           uint64
	MediaRemoved          uint64
	MediaRemoveFailed     uint64
	ReportsPDF            uint64
	ReportsCSV            uint64
	ReportDurationCount   uint64
	ReportDurationTotalNs int64
	LoginsFailed          uint64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	expensesCreated       uint64
	expensesUpdated       uint64
	expensesDeleted       uint64
	mediaStored           uint64
	mediaRemoved          uint64
	mediaRemoveFailed     uint64
	reportsPDF            uint64
	reportsCSV            uint64
	reportDurationCount   uint64
	reportDurationTotalNs int64
	loginsFailed          uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		ExpensesCreated:       atomic.LoadUint64(&m.expensesCreated),
		ExpensesUpdated:       atomic.LoadUint64(&m.expensesUpdated),
		ExpensesDeleted:       atomic.LoadUint64(&m.expensesDeleted),
		MediaStored:           atomic.LoadUint64(&m.mediaStored),
		MediaRemoved:          atomic.LoadUint64(&m.mediaRemoved),
		MediaRemoveFailed:     atomic.LoadUint64(&m.mediaRemoveFailed),
		ReportsPDF:            atomic.LoadUint64(&m.reportsPDF),
		ReportsCSV:            atomic.LoadUint64(&m.reportsCSV),
		ReportDurationCount:   atomic.LoadUint64(&m.reportDurationCount),
		ReportDurationTotalNs: atomic.LoadInt64(&m.reportDurationTotalNs),
		LoginsFailed:          atomic.LoadUint64(&m.loginsFailed),
	}
}

// IncExpenseCreated increments expense created counter.
func (m *InMemoryRecorder) IncExpenseCreated() {
	atomic.AddUint64(&m.expensesCreated, 1)
}

// IncExpenseUpdated increments expense updated counter.
func (m *InMemoryRecorder) IncExpenseUpdated() {
	atomic.AddUint64(&m.expensesUpdated, 1)
}

// IncExpenseDeleted increments expense deleted counter.
func (m *InMemoryRecorder) IncExpenseDeleted() {
	atomic.AddUint64(&m.expensesDeleted, 1)
}

// IncMediaStored increments stored media counter.
func (m *InMemoryRecorder) IncMediaStored() {
	atomic.AddUint64(&m.mediaStored, 1)
}

// IncMediaRemoved increments removed media counter.
func (m *InMemoryRecorder) IncMediaRemoved() {
	atomic.AddUint64(&m.mediaRemoved, 1)
}

// IncMediaRemoveFailed increments failed media removal counter.
func (m *InMemoryRecorder) IncMediaRemoveFailed() {
	atomic.AddUint64(&m.mediaRemoveFailed, 1)
}

// IncReportRendered increments the report counter of a format.
func (m *InMemoryRecorder) IncReportRendered(format string) {
	switch format {
	case "pdf":
		atomic.AddUint64(&m.reportsPDF, 1)
	case "csv":
		atomic.AddUint64(&m.reportsCSV, 1)
	}
}

// ObserveReportDuration records report rendering duration.
func (m *InMemoryRecorder) ObserveReportDuration(duration time.Duration) {
	atomic.AddUint64(&m.reportDurationCount, 1)
	atomic.AddInt64(&m.reportDurationTotalNs, duration.Nanoseconds())
}

// IncLoginFailed increments failed login counter.
func (m *InMemoryRecorder) IncLoginFailed() {
	atomic.AddUint64(&m.loginsFailed, 1)
}
