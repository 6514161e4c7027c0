// Package metrics exposes the celldiag Prometheus collectors. A nil
// *Metrics records nothing, so components can take one unconditionally.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "celldiag"

// Outcome label values.
const (
	OutcomeAnswered  = "answered"
	OutcomeAbstained = "abstained"
)

// Metrics holds the collectors of one App. A nil *Metrics records nothing.
type Metrics struct {
	Questions        *prometheus.CounterVec
	Verdicts         *prometheus.CounterVec
	Confidence       *prometheus.HistogramVec
	ReasoningSeconds *prometheus.HistogramVec
	Detections       *prometheus.CounterVec
	Reloads          *prometheus.CounterVec
	SchemaEntities   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Questions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Questions reasoned over, by route taken",
			},
			[]string{"route"},
		),
		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_verdicts_total",
				Help:      "Gate verdicts by outcome and abstain reason",
			},
			[]string{"outcome", "reason"},
		),
		Confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "final_confidence",
				Help:      "Blended confidence of gate verdicts",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"outcome"},
		),
		ReasoningSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reasoning_duration_seconds",
				Help:      "Time spent reasoning over one question",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"route"},
		),
		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pattern_detections_total",
				Help:      "Patterns detected in sensor series, by pattern type",
			},
			[]string{"type"},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Schema and rule reloads by result",
			},
			[]string{"result"},
		),
		SchemaEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schema_entities",
				Help:      "Entities in the active graph snapshot",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Questions, m.Verdicts, m.Confidence, m.ReasoningSeconds,
		m.Detections, m.Reloads, m.SchemaEntities,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveQuestion records one reasoning call.
func (m *Metrics) ObserveQuestion(route string, took time.Duration) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(route).Inc()
	m.ReasoningSeconds.WithLabelValues(route).Observe(took.Seconds())
}

// ObserveVerdict records a gate decision. reason is empty when answered.
func (m *Metrics) ObserveVerdict(passed bool, reason string, confidence float64) {
	if m == nil {
		return
	}
	outcome := OutcomeAnswered
	if !passed {
		outcome = OutcomeAbstained
	}
	m.Verdicts.WithLabelValues(outcome, reason).Inc()
	m.Confidence.WithLabelValues(outcome).Observe(confidence)
}

// ObserveDetection counts one detected pattern.
func (m *Metrics) ObserveDetection(patternType string) {
	if m == nil {
		return
	}
	m.Detections.WithLabelValues(patternType).Inc()
}

// ObserveReload records a reload attempt and, on success, the new graph
// size.
func (m *Metrics) ObserveReload(err error, entities int) {
	if m == nil {
		return
	}
	if err != nil {
		m.Reloads.WithLabelValues("error").Inc()
		return
	}
	m.Reloads.WithLabelValues("ok").Inc()
	m.SchemaEntities.Set(float64(entities))
}

// Handler serves the metrics in g. A nil g uses prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
