package desk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewbaird/accountdesk/internal/command"
	"github.com/matthewbaird/accountdesk/internal/metrics"
)

// Metrics counts desk commands.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers desk metrics with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "desk",
			Name:      "commands_total",
			Help:      "Commands handled, by verb and outcome",
		}, []string{"verb", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "desk",
			Name:      "command_duration_seconds",
			Help:      "Time to handle a command, including directory calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
	}
	for _, c := range []prometheus.Collector{m.commands, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(verb command.Verb, r Reply, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if r.Failure != nil {
		outcome = string(r.Failure.Kind)
	}
	if !command.Known(verb) {
		verb = "unknown"
	}
	m.commands.WithLabelValues(string(verb), outcome).Inc()
	m.duration.WithLabelValues(string(verb)).Observe(took.Seconds())
}
