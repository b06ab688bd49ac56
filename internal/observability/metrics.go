// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TransactionsReceived prometheus.Counter
	TransactionsStored   prometheus.Counter
	MemosMaterialized    prometheus.Counter
	MemosSkipped         prometheus.Counter
	IngestionErrors      *prometheus.CounterVec
	HighestLedgerSeen    prometheus.Gauge
	WSReconnects         prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// Report metrics
	ActivityPointsComputed prometheus.Counter
	ReportRunsTotal        *prometheus.CounterVec
	ReportDuration         prometheus.Histogram

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulReport    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pft_memo_cache"
	}

	return &Metrics{
		// Ingestion metrics
		TransactionsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_received_total",
			Help:      "Total number of ledger transactions received",
		}),
		TransactionsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_stored_total",
			Help:      "Total number of transactions written to the cache",
		}),
		MemosMaterialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "memos_materialized_total",
			Help:      "Total number of memo rows derived from transactions",
		}),
		MemosSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "memos_skipped_total",
			Help:      "Total number of transactions without a memo list",
		}),
		IngestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by type",
		}, []string{"error_type"}),
		HighestLedgerSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_ledger_seen",
			Help:      "Highest ledger index seen",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),

		// Query metrics
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of queries served by operation",
		}, []string{"operation"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of query errors by operation",
		}, []string{"operation"}),

		// Report metrics
		ActivityPointsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "activity_points_computed_total",
			Help:      "Total number of account activity points computed",
		}),
		ReportRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "runs_total",
			Help:      "Total number of report runs by status",
		}, []string{"status"}),
		ReportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "duration_seconds",
			Help:      "Report execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		LastSuccessfulReport: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_report_timestamp",
			Help:      "Unix timestamp of last successful report run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransactionReceived increments the transactions received counter.
func RecordTransactionReceived() {
	DefaultMetrics.TransactionsReceived.Inc()
}

// RecordTransactionStored increments the transactions stored counter and
// bumps the ingestion health timestamp.
func RecordTransactionStored(unixNow int64) {
	DefaultMetrics.TransactionsStored.Inc()
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(unixNow))
}

// RecordMemoMaterialized increments the memos materialized counter.
func RecordMemoMaterialized() {
	DefaultMetrics.MemosMaterialized.Inc()
}

// RecordMemoSkipped increments the memos skipped counter.
func RecordMemoSkipped() {
	DefaultMetrics.MemosSkipped.Inc()
}

// RecordIngestionError records an ingestion error.
func RecordIngestionError(errorType string) {
	DefaultMetrics.IngestionErrors.WithLabelValues(errorType).Inc()
}

// UpdateHighestLedger updates the highest ledger seen gauge.
func UpdateHighestLedger(ledgerIndex int64) {
	DefaultMetrics.HighestLedgerSeen.Set(float64(ledgerIndex))
}

// RecordWSReconnect increments the WebSocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordQuery records a served query.
func RecordQuery(operation string, seconds float64, err error) {
	DefaultMetrics.QueriesTotal.WithLabelValues(operation).Inc()
	DefaultMetrics.QueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.QueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordReportRun records a report run.
func RecordReportRun(status string, durationSeconds float64) {
	DefaultMetrics.ReportRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ReportDuration.Observe(durationSeconds)
}
