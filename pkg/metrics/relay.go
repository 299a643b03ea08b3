package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics instruments the outbox relay loop. A nil receiver is a no-op.
type RelayMetrics struct {
	cycles          prometheus.Counter
	claimErrors     prometheus.Counter
	claimed         prometheus.Counter
	sent            prometheus.Counter
	failed          *prometheus.CounterVec
	markErrors      prometheus.Counter
	claimsLost      prometheus.Counter
	publishDuration prometheus.Histogram
	lag             prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_cycles_total",
			Help: "Relay polling cycles started.",
		}),
		claimErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_claim_errors_total",
			Help: "Relay cycles aborted because pending records could not be claimed.",
		}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_claimed_total",
			Help: "Outbox records claimed for publishing.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_sent_total",
			Help: "Outbox records confirmed by the broker and marked SENT.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_relay_failed_total",
			Help: "Outbox records marked FAILED, by reason.",
		}, []string{"reason"}),
		markErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_mark_errors_total",
			Help: "Status updates that could not be persisted after a publish attempt.",
		}),
		claimsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_claims_lost_total",
			Help: "Claimed records skipped because another worker took them over.",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_relay_publish_duration_seconds",
			Help:    "Time from publish to broker confirmation.",
			Buckets: prometheus.DefBuckets,
		}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_relay_lag_seconds",
			Help: "Age of the oldest record claimed in the last cycle.",
		}),
	}
	reg.MustRegister(m.cycles, m.claimErrors, m.claimed, m.sent, m.failed, m.markErrors, m.claimsLost, m.publishDuration, m.lag)
	return m
}

func (m *RelayMetrics) IncCycle() {
	if m == nil || m.cycles == nil {
		return
	}
	m.cycles.Inc()
}

func (m *RelayMetrics) IncClaimError() {
	if m == nil || m.claimErrors == nil {
		return
	}
	m.claimErrors.Inc()
}

func (m *RelayMetrics) AddClaimed(n int) {
	if m == nil || m.claimed == nil || n <= 0 {
		return
	}
	m.claimed.Add(float64(n))
}

func (m *RelayMetrics) IncSent() {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.Inc()
}

func (m *RelayMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RelayMetrics) IncMarkError() {
	if m == nil || m.markErrors == nil {
		return
	}
	m.markErrors.Inc()
}

func (m *RelayMetrics) IncClaimLost() {
	if m == nil || m.claimsLost == nil {
		return
	}
	m.claimsLost.Inc()
}

func (m *RelayMetrics) ObservePublish(d time.Duration) {
	if m == nil || m.publishDuration == nil {
		return
	}
	m.publishDuration.Observe(d.Seconds())
}

func (m *RelayMetrics) SetLag(d time.Duration) {
	if m == nil || m.lag == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lag.Set(d.Seconds())
}
