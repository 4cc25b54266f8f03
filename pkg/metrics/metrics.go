// Package metrics exposes the Prometheus counters and histograms the pump
// and writers update while flattening and extracting records. Adapted from
// the teacher's metrics registry, trimmed to the counters a flatten/extract
// pipeline actually produces -- the teacher's file-monitor, container-stream,
// and position-tracking families are not carried over: this pipeline has no
// container streams or checkpoints, and its tail source records no metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	RecordsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableflow_records_processed_total",
			Help: "Total number of source records processed",
		},
		[]string{"entity", "status"},
	)

	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableflow_rows_written_total",
			Help: "Total number of output rows written",
		},
		[]string{"table", "writer"},
	)

	RowsDeduplicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableflow_rows_deduplicated_total",
		Help: "Total number of rows dropped as duplicates",
	})

	RowsDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableflow_rows_dead_lettered_total",
			Help: "Total number of rows routed to the dead-letter queue",
		},
		[]string{"stage"},
	)

	BatchFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableflow_batch_flush_duration_seconds",
			Help:    "Time spent flushing one batch to a writer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"writer"},
	)

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tableflow_batch_size_rows",
		Help:    "Number of rows in each flushed batch",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	BackpressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tableflow_backpressure_level",
		Help: "Current backpressure level (0=none .. 4=critical)",
	})

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tableflow_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	DLQEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tableflow_dlq_entries_total",
		Help: "Total entries appended to the dead-letter queue file",
	})
)

// RecordProcessed increments the per-entity processed counter.
func RecordProcessed(entity, status string) {
	RecordsProcessedTotal.WithLabelValues(entity, status).Inc()
}

// RecordRowsWritten adds n rows written to table via writer.
func RecordRowsWritten(table, writer string, n int) {
	RowsWrittenTotal.WithLabelValues(table, writer).Add(float64(n))
}

// RecordFlush observes one batch flush against writer.
func RecordFlush(writer string, rows int, took time.Duration) {
	BatchFlushDuration.WithLabelValues(writer).Observe(took.Seconds())
	BatchSize.Observe(float64(rows))
}

// SetCircuitState mirrors a circuit breaker's current state into the gauge.
func SetCircuitState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the HTTP handler serving /metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// MustRegister is a thin wrapper kept for parity with the teacher's
// registration helper; promauto already registers the vars above against
// the default registry, so this exists only for custom collectors callers
// add later (e.g. a writer-specific gauge).
func MustRegister(log *logrus.Logger, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if log != nil {
				log.WithError(err).Debug("metrics: collector already registered")
			}
		}
	}
}
