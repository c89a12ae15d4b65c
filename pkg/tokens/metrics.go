package tokens

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records token operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	purged     prometheus.Counter
}

// NewMetrics creates the token metrics and registers them with reg. A nil
// reg creates unregistered collectors, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenvault_token_operations_total",
				Help: "Total number of token operations by outcome",
			},
			[]string{"op", "result"},
		),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokenvault_tokens_purged_total",
			Help: "Total number of expired or undecodable tokens removed from storage",
		}),
	}
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) addPurged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.purged.Add(float64(n))
}
