package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	punchPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeclock_service",
		Subsystem: "persistence",
		Name:      "last_punch_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent punch persisted to Postgres.",
	})
	punchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeclock_service",
		Subsystem: "ingest",
		Name:      "punches_recorded_total",
		Help:      "Number of punch records accepted, labeled by inferred type.",
	}, []string{"type"})
	duplicateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timeclock_service",
		Subsystem: "ingest",
		Name:      "duplicates_skipped_total",
		Help:      "Number of push entries skipped as redelivered duplicates.",
	})
	batchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeclock_service",
		Subsystem: "ingest",
		Name:      "webhook_batches_total",
		Help:      "Number of push webhook batches processed, labeled by final status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(punchPersistGauge, punchCounter, duplicateCounter, batchCounter)
}

// RecordPunchPersisted updates the persistence watermark gauge.
func RecordPunchPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	punchPersistGauge.Set(float64(ts.Unix()))
}

// RecordPunch counts an accepted punch by inferred type.
func RecordPunch(punchType string) {
	punchCounter.WithLabelValues(punchType).Inc()
}

// RecordDuplicateSkipped counts a redelivered push entry.
func RecordDuplicateSkipped() {
	duplicateCounter.Inc()
}

// RecordBatch counts a completed webhook batch by status.
func RecordBatch(status string) {
	batchCounter.WithLabelValues(status).Inc()
}
