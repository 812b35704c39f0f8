package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/szaher/nova/internal/llm"
)

// Metrics collects Prometheus metrics for the Nova engine. Each Metrics
// owns its registry so tests and embedded engines do not collide.
type Metrics struct {
	registry *prometheus.Registry

	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	agentCalls    *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	parseDegraded *prometheus.CounterVec
	iterations    *prometheus.CounterVec
}

// NewMetrics creates a Metrics collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "stages_total",
			Help:      "Stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nova",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution time.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		agentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "agent_calls_total",
			Help:      "Agent calls by role and outcome.",
		}, []string{"role", "outcome"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "tokens_total",
			Help:      "Provider tokens consumed, by direction.",
		}, []string{"type"}),
		parseDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "parse_degraded_total",
			Help:      "Agent responses with no recognised section headers.",
		}, []string{"role"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Name:      "iterations_total",
			Help:      "Iterations started and completed.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(m.stagesTotal, m.stageDuration, m.agentCalls, m.tokensTotal, m.parseDegraded, m.iterations)
	return m
}

// RecordStage records a stage execution.
func (m *Metrics) RecordStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAgentCall records one agent call and the tokens it consumed.
func (m *Metrics) RecordAgentCall(role, outcome string, usage *llm.Usage, degraded bool) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(role, outcome).Inc()
	if usage != nil {
		m.tokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
		m.tokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	}
	if degraded {
		m.parseDegraded.WithLabelValues(role).Inc()
	}
}

// RecordIteration counts an iteration lifecycle event ("started" or "completed").
func (m *Metrics) RecordIteration(event string) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(event).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteText writes every collected metric to w in the Prometheus text
// exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
