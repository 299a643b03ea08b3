package metrics

import "github.com/prometheus/client_golang/prometheus"

// Consumer outcome labels.
const (
	ConsumerHandled   = "handled"
	ConsumerDuplicate = "duplicate"
	ConsumerRejected  = "rejected"
	ConsumerPoison    = "poison"
	ConsumerDropped   = "dropped"
)

// ConsumerMetrics counts deliveries by outcome.
type ConsumerMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractor_consumer_deliveries_total",
		Help: "Contractor change notifications received, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(deliveries)
	return &ConsumerMetrics{deliveries: deliveries}
}

func (m *ConsumerMetrics) Inc(outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(outcome)).Inc()
}
