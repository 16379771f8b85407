package signature

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ManuelReschke/SignFlow/app/models"
)

// Metrics are the lifecycle counters. A nil *Metrics records nothing.
type Metrics struct {
	EventsCreated *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	ProviderCalls *prometheus.CounterVec
	Tasks         *prometheus.CounterVec
	SweepEvents   *prometheus.CounterVec
	SweepDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signature_events_created_total", Help: "Signature events created."},
			[]string{"provider"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signature_transitions_total", Help: "Persisted status transitions."},
			[]string{"from", "to"},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signature_provider_calls_total", Help: "Vendor API calls by outcome."},
			[]string{"provider", "operation", "outcome"},
		),
		Tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signature_tasks_total", Help: "Handled signature tasks by outcome."},
			[]string{"task", "outcome"},
		),
		SweepEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signature_sweep_events_total", Help: "Events touched by reconciliation sweeps."},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "signature_sweep_duration_seconds", Help: "Duration of reconciliation sweeps."},
		),
	}
	reg.MustRegister(m.EventsCreated, m.Transitions, m.ProviderCalls, m.Tasks, m.SweepEvents, m.SweepDuration)
	return m
}

func (m *Metrics) created(p models.Provider) {
	if m == nil {
		return
	}
	m.EventsCreated.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) transition(from, to models.SignatureStatus) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) providerCall(p models.Provider, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(string(p), operation, outcome).Inc()
}

func (m *Metrics) task(task, outcome string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) sweep(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SweepEvents.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) sweepDone(started time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(started).Seconds())
}
