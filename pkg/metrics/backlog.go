package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BacklogMetrics exposes the outbox table state sampled by the cron worker.
type BacklogMetrics struct {
	records          *prometheus.GaugeVec
	oldestPendingAge prometheus.Gauge
	staleReleased    prometheus.Counter
}

func NewBacklogMetrics(reg prometheus.Registerer) *BacklogMetrics {
	if reg == nil {
		return &BacklogMetrics{}
	}
	m := &BacklogMetrics{
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outbox_records",
			Help: "Outbox records by status.",
		}, []string{"status"}),
		oldestPendingAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest PENDING outbox record.",
		}),
		staleReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_stale_claims_released_total",
			Help: "Abandoned relay claims released by the maintenance job.",
		}),
	}
	reg.MustRegister(m.records, m.oldestPendingAge, m.staleReleased)
	return m
}

func (m *BacklogMetrics) SetRecords(status string, count int64) {
	if m == nil || m.records == nil {
		return
	}
	m.records.WithLabelValues(normalizeLabel(status)).Set(float64(count))
}

func (m *BacklogMetrics) SetOldestPendingAge(d time.Duration) {
	if m == nil || m.oldestPendingAge == nil {
		return
	}
	m.oldestPendingAge.Set(d.Seconds())
}

func (m *BacklogMetrics) AddStaleReleased(n int64) {
	if m == nil || m.staleReleased == nil || n <= 0 {
		return
	}
	m.staleReleased.Add(float64(n))
}
