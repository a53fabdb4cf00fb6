package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks loader throughput per sink and table.
type Metrics struct {
	inserted *prometheus.CounterVec
	failed   *prometheus.CounterVec
	batches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers loader metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorecast",
			Subsystem: "loader",
			Name:      "records_inserted_total",
			Help:      "Records committed to a sink.",
		}, []string{"sink", "table"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorecast",
			Subsystem: "loader",
			Name:      "record_failures_total",
			Help:      "Records rejected by a sink.",
		}, []string{"sink", "table"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorecast",
			Subsystem: "loader",
			Name:      "batches_total",
			Help:      "Batches committed to a sink.",
		}, []string{"sink", "table"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scorecast",
			Subsystem: "loader",
			Name:      "batch_duration_seconds",
			Help:      "Time to commit one batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink", "table"}),
	}
	reg.MustRegister(m.inserted, m.failed, m.batches, m.duration)
	return m
}

func (m *Metrics) observe(sink, table string, inserted, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inserted.WithLabelValues(sink, table).Add(float64(inserted))
	m.failed.WithLabelValues(sink, table).Add(float64(failed))
	m.batches.WithLabelValues(sink, table).Inc()
	m.duration.WithLabelValues(sink, table).Observe(elapsed.Seconds())
}

func (m *Metrics) skipped(sink, table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.failed.WithLabelValues(sink, table).Add(float64(n))
}
