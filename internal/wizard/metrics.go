package wizard

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/accountdesk/internal/metrics"
)

// Metrics counts wizard outcomes.
type Metrics struct {
	completions   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

// NewMetrics creates and registers wizard metrics with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "wizard",
			Name:      "completions_total",
			Help:      "Creation attempts at completion, by outcome",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "wizard",
			Name:      "cancellations_total",
			Help:      "Cancelled flows, by mode",
		}, []string{"mode"}),
	}
	if err := reg.Register(m.completions); err != nil {
		return nil, err
	}
	if err := reg.Register(m.cancellations); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) completed(outcome string) {
	if m != nil {
		m.completions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) cancelled(mode Mode) {
	if m != nil {
		m.cancellations.WithLabelValues(string(mode)).Inc()
	}
}
