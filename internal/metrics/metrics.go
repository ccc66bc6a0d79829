// Package metrics exposes the ingestion pipeline's Prometheus collectors
// (SPEC_FULL.md A.5): records ingested, parse outcomes, filtered drops,
// events by type, flow upserts, unclassified-endpoint upserts, job state and
// duration, retention/purge row counts, and writer retry counts.
//
// Grounded on the teacher's internal/metrics/metrics.go: package-level
// promauto collectors registered once at import time, labeled the same way
// the teacher labels its dispatcher/sink metrics (by component/outcome), just
// renamed for this domain's components instead of sinks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netwallfa"

var (
	// RecordsIngestedTotal counts every reconstructed record handed to the
	// parser, labeled by ingest mode ("live", "batch").
	RecordsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_ingested_total",
		Help:      "Total records fed through the parser, by ingest mode.",
	}, []string{"mode"})

	// ParseOutcomeTotal counts parser results, labeled "ok" or "error"
	// (spec section 4.3).
	ParseOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_outcome_total",
		Help:      "Parse outcomes by status.",
	}, []string{"status"})

	// FilteredIDTotal counts records dropped for an unaccepted id prefix
	// (spec section 4.3).
	FilteredIDTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filtered_id_total",
		Help:      "Records dropped before raw-log write for an unaccepted id prefix.",
	})

	// EventsByTypeTotal counts persisted Events labeled by event_type.
	EventsByTypeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_by_type_total",
		Help:      "Persisted CONN events by event_type.",
	}, []string{"event_type"})

	// FlowUpsertsTotal counts flow-row upserts, labeled by basis/view_kind
	// (spec section 4.5).
	FlowUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_upserts_total",
		Help:      "Flow row upserts by basis and view_kind.",
	}, []string{"basis", "view_kind"})

	// UnclassifiedUpsertsTotal counts UnclassifiedEndpoint upserts (spec
	// section 4.4).
	UnclassifiedUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unclassified_upserts_total",
		Help:      "Unclassified (device, kind, name) upserts recorded by the classifier.",
	})

	// IngestJobState is a gauge-per-state snapshot of the job queue,
	// refreshed by the worker loop (spec section 4.8).
	IngestJobState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_job_state",
		Help:      "Count of ingest jobs currently in each state.",
	}, []string{"state"})

	// IngestJobDurationSeconds observes wall-clock run time of one import
	// job from running to a terminal state.
	IngestJobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_job_duration_seconds",
		Help:      "Import job run duration, running to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"outcome"})

	// RetentionRowsDeletedTotal counts rows removed by the retention
	// cleaner, labeled by table (spec section 4.9).
	RetentionRowsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_rows_deleted_total",
		Help:      "Rows deleted by the retention cleaner, by table.",
	}, []string{"table"})

	// PurgeRowsDeletedTotal counts rows removed by a firewall purge,
	// labeled by table (spec section 4.10).
	PurgeRowsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purge_rows_deleted_total",
		Help:      "Rows deleted by a firewall cascading purge, by table.",
	}, []string{"table"})

	// WriterRetryTotal counts transient-locking retries inside the writer
	// and the best-effort side-write paths (spec sections 4.6, 4.4, 7).
	WriterRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writer_retry_total",
		Help:      "Retry attempts for a transient-locking failure, by operation.",
	}, []string{"operation"})

	// DiskUsageBytes tracks used bytes under a monitored directory (the
	// upload directory's disk-space manager), labeled by directory path.
	DiskUsageBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "disk_usage_bytes",
		Help:      "Bytes used under a monitored directory.",
	}, []string{"directory"})

	// HTTPRequestDurationSeconds observes request latency for the
	// operational HTTP surface, labeled by path and method.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Operational HTTP surface request duration, by path and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method"})
)

// Handler returns the promhttp handler internal/httpapi mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
