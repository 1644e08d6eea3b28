package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake dialogue.
type IntakeMetrics struct {
	turnsTotal       *prometheus.CounterVec
	inferenceTotal   *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	bookingsTotal    *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionsEvicted  prometheus.Counter
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total conversation turns by entry and exit state",
		}, []string{"from", "to"}),
		inferenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "inference",
			Name:      "calls_total",
			Help:      "Total inference service calls",
		}, []string{"task", "outcome"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "inference",
			Name:      "call_latency_seconds",
			Help:      "Latency of inference service calls including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"task"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "booking",
			Name:      "finalized_total",
			Help:      "Finalized appointments by persistence and email outcome",
		}, []string{"persisted", "emailed"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently held in the registry",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Sessions evicted by the registry janitor",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.inferenceTotal, m.inferenceLatency, m.bookingsTotal, m.sessionsActive, m.sessionsEvicted)
	return m
}

func (m *IntakeMetrics) ObserveTurn(from, to string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(from, to).Inc()
}

func (m *IntakeMetrics) ObserveInference(task, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.inferenceTotal.WithLabelValues(task, outcome).Inc()
	m.inferenceLatency.WithLabelValues(task).Observe(seconds)
}

func (m *IntakeMetrics) ObserveBooking(persisted, emailed bool) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(boolLabel(persisted), boolLabel(emailed)).Inc()
}

// SetActiveSessions records the registry size after a create or sweep.
func (m *IntakeMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *IntakeMetrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(float64(n))
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
