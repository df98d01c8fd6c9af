package chatcontext

import "github.com/prometheus/client_golang/prometheus"

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	assembled        prometheus.Histogram
	olderChat        prometheus.Histogram
	retrievalFailure prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		assembled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "galaxychat",
			Subsystem: "context",
			Name:      "assembled_messages",
			Help:      "Number of messages in each assembled context window.",
			Buckets:   []float64{1, 4, 8, 16, 32, 48, 65, 100},
		}),
		olderChat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "galaxychat",
			Subsystem: "context",
			Name:      "older_chat_messages",
			Help:      "Number of messages taken from other chats per context window.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40},
		}),
		retrievalFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "galaxychat",
			Subsystem: "context",
			Name:      "older_chat_lookup_failures_total",
			Help:      "Older chat lookups that failed and were skipped.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.assembled, m.olderChat, m.retrievalFailure)
	}
	return m
}

func (m *Metrics) observeAssembled(total, older int) {
	if m == nil {
		return
	}
	m.assembled.Observe(float64(total))
	m.olderChat.Observe(float64(older))
}

func (m *Metrics) retrievalFailed() {
	if m == nil {
		return
	}
	m.retrievalFailure.Inc()
}
