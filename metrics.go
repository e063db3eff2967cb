package sharedevent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Prometheus collector for a Channel, grounded on the
// teacher's metrics_exporters.go PrometheusCollector pattern: counters and
// histograms registered once and shared across every Channel that opts in
// via WithMetrics, labeled by channel name so one registry can serve many
// channels in the same process.
type Metrics struct {
	participants  *prometheus.GaugeVec
	emitDuration  *prometheus.HistogramVec
	evictions     *prometheus.CounterVec
	emitsTotal    *prometheus.CounterVec
	registerFails *prometheus.CounterVec
}

// NewMetrics builds a Metrics collector and registers it with reg. Pass
// prometheus.DefaultRegisterer to use the global registry, matching how
// the teacher wires its own exporters.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sharedevent",
			Name:      "participants",
			Help:      "Current number of registered participants on a channel.",
		}, []string{"channel"}),
		emitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sharedevent",
			Name:      "emit_duration_seconds",
			Help:      "Time Emit spends holding the registration lock, including fan-out waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedevent",
			Name:      "evictions_total",
			Help:      "Participants evicted for being dead or unresponsive during Emit.",
		}, []string{"channel"}),
		emitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedevent",
			Name:      "emits_total",
			Help:      "Successful Emit calls.",
		}, []string{"channel"}),
		registerFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedevent",
			Name:      "register_failures_total",
			Help:      "Join attempts that exhausted their retry budget on slot collisions.",
		}, []string{"channel"}),
	}

	for _, c := range []prometheus.Collector{m.participants, m.emitDuration, m.evictions, m.emitsTotal, m.registerFails} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeJoin(channel string) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues(channel).Inc()
}

func (m *Metrics) observeLeave(channel string) {
	if m == nil {
		return
	}
	m.participants.WithLabelValues(channel).Dec()
}

func (m *Metrics) observeEvictions(channel string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.evictions.WithLabelValues(channel).Add(float64(count))
	m.participants.WithLabelValues(channel).Sub(float64(count))
}

func (m *Metrics) observeEmit(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.emitDuration.WithLabelValues(channel).Observe(seconds)
	m.emitsTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) observeRegisterFailure(channel string) {
	if m == nil {
		return
	}
	m.registerFails.WithLabelValues(channel).Inc()
}
