package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableapi_statements_total",
			Help: "Total number of executed statements by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableapi_statement_duration_seconds",
			Help:    "Statement latency including begin and commit.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"intent"},
	)
	skippedEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableapi_skipped_entries_total",
			Help: "Batch entries skipped because the target id does not exist or is malformed.",
		},
		[]string{"operation"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableapi_exports_total",
			Help: "Total number of table exports by status.",
		},
		[]string{"status"},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tableapi_export_rows_total",
			Help: "Total number of rows written by table exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		statementsTotal,
		statementDurationSeconds,
		skippedEntriesTotal,
		exportsTotal,
		exportRowsTotal,
	)
}

func ObserveStatement(intent, outcome string, elapsed time.Duration) {
	statementsTotal.WithLabelValues(intent, outcome).Inc()
	statementDurationSeconds.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func AddSkippedEntries(operation string, count int) {
	if count <= 0 {
		return
	}
	skippedEntriesTotal.WithLabelValues(operation).Add(float64(count))
}

func ObserveExport(status string, rowCount int) {
	exportsTotal.WithLabelValues(status).Inc()
	if rowCount > 0 {
		exportRowsTotal.Add(float64(rowCount))
	}
}
