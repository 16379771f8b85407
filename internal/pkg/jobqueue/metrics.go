package jobqueue

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts job outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Jobs     *prometheus.CounterVec
	Promoted prometheus.Counter
	Sweeps   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "jobqueue_jobs_total", Help: "Jobs by type and outcome."},
			[]string{"type", "outcome"},
		),
		Promoted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "jobqueue_delayed_promoted_total", Help: "Delayed jobs moved to the queue."},
		),
		Sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "jobqueue_sweeps_total", Help: "Scheduled sweep runs by outcome."},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.Jobs, m.Promoted, m.Sweeps)
	return m
}

func (m *Metrics) job(t JobType, outcome string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) promoted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Promoted.Add(float64(n))
}

func (m *Metrics) sweep(outcome string) {
	if m == nil {
		return
	}
	m.Sweeps.WithLabelValues(outcome).Inc()
}
