package trigger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Cycles          *prometheus.CounterVec
	Grants          prometheus.Counter
	Failures        *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	DispatchDropped prometheus.Counter
}

// NewMetrics creates the engine collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badge_engine_cycles_total",
				Help: "Total number of badge evaluation cycles by outcome",
			},
			[]string{"outcome"},
		),
		Grants: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "badge_engine_grants_total",
			Help: "Total number of badges newly granted",
		}),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badge_engine_failures_total",
				Help: "Total number of contained failures by error kind",
			},
			[]string{"kind"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "badge_engine_cycle_duration_seconds",
			Help:    "Duration of badge evaluation cycles",
			Buckets: prometheus.DefBuckets,
		}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "badge_engine_dispatch_dropped_total",
			Help: "Total number of evaluation cycles dropped because the dispatch queue was full",
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Cycles, m.Grants, m.Failures, m.CycleDuration, m.DispatchDropped}
}

func (m *Metrics) observe(r Report) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(string(r.Outcome)).Inc()
	m.Grants.Add(float64(len(r.Granted)))
	for _, f := range r.Failures {
		m.Failures.WithLabelValues(f.Kind).Inc()
	}
	m.CycleDuration.Observe(r.Duration.Seconds())
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}
