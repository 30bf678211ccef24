package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	MemoLookups   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry so tests can
// build several instances.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "pipeline_outcomes_total",
			Help:      "Statement analyses by final status.",
		}, []string{"status"}),
		MemoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "memo_lookups_total",
			Help:      "Insight memo lookups by result.",
		}, []string{"result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finsight",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Outcomes, m.MemoLookups, m.StageDuration)
	return m
}

// ObserveStage records the elapsed time since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Outcome counts one finished pipeline run.
func (m *Metrics) Outcome(status string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(status).Inc()
}

// Memo counts a memo hit or miss.
func (m *Metrics) Memo(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MemoLookups.WithLabelValues(result).Inc()
}
