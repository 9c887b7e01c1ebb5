package handler

import (
	"fmt"
	"net/http"

	"github.com/cashtrack/cashtrack/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "cashtrack_expenses_total{op=\"created\"} %d\n", snap.ExpensesCreated)
	writeMetric(w, "cashtrack_expenses_total{op=\"updated\"} %d\n", snap.ExpensesUpdated)
	writeMetric(w, "cashtrack_expenses_total{op=\"deleted\"} %d\n", snap.ExpensesDeleted)

	writeMetric(w, "cashtrack_media_files_total{op=\"stored\"} %d\n", snap.MediaStored)
	writeMetric(w, "cashtrack_media_files_total{op=\"removed\"} %d\n", snap.MediaRemoved)
	writeMetric(w, "cashtrack_media_remove_failures_total %d\n", snap.MediaRemoveFailed)

	writeMetric(w, "cashtrack_reports_rendered_total{format=\"pdf\"} %d\n", snap.ReportsPDF)
	writeMetric(w, "cashtrack_reports_rendered_total{format=\"csv\"} %d\n", snap.ReportsCSV)
	writeMetric(w, "cashtrack_report_duration_seconds_count %d\n", snap.ReportDurationCount)
	writeMetric(w, "cashtrack_report_duration_seconds_sum %.6f\n", float64(snap.ReportDurationTotalNs)/1e9)

	writeMetric(w, "cashtrack_logins_failed_total %d\n", snap.LoginsFailed)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
