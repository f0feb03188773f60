// Package observability provides Prometheus metrics for the
// assessment pipeline.
package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	// AssessmentsTotal counts completed assessments by verdict level.
	AssessmentsTotal *prometheus.CounterVec

	// FallbacksTotal counts pipeline failures degraded to the Low fallback.
	FallbacksTotal prometheus.Counter

	// AnomaliesTotal counts triggered anomaly rules by type.
	AnomaliesTotal *prometheus.CounterVec

	// PolicyEscalationsTotal counts policy-driven verdict escalations.
	PolicyEscalationsTotal prometheus.Counter

	// PipelineDuration observes the feature+cascade time per assessment.
	PipelineDuration prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AssessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saqr_assessments_total",
			Help: "Completed risk assessments by verdict level.",
		}, []string{"level"}),
		FallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "saqr_fallbacks_total",
			Help: "Assessments degraded to the fixed Low fallback.",
		}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saqr_anomalies_total",
			Help: "Triggered anomaly rules by type.",
		}, []string{"type"}),
		PolicyEscalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "saqr_policy_escalations_total",
			Help: "Verdicts escalated by tenant policies.",
		}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "saqr_pipeline_duration_seconds",
			Help:    "Feature engineering and model cascade duration.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
}

// NewMetricsForTesting creates metrics on an isolated registry so
// parallel tests cannot collide on collector registration.
func NewMetricsForTesting(tb testing.TB) *Metrics {
	tb.Helper()
	return NewMetrics()
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAssessment records one completed assessment.
func (m *Metrics) ObserveAssessment(level string, fallback bool, pipelineSeconds float64) {
	if m == nil {
		return
	}
	m.AssessmentsTotal.WithLabelValues(level).Inc()
	if fallback {
		m.FallbacksTotal.Inc()
	}
	m.PipelineDuration.Observe(pipelineSeconds)
}

// ObserveAnomaly records one triggered anomaly rule.
func (m *Metrics) ObserveAnomaly(anomalyType string) {
	if m == nil {
		return
	}
	m.AnomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// ObserveEscalation records one policy escalation.
func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.PolicyEscalationsTotal.Inc()
}
