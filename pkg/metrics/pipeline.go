package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records derivative generation outcomes per variant.
type PipelineMetrics struct {
	duration  *prometheus.HistogramVec
	generated *prometheus.CounterVec
	failed    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	removed   *prometheus.CounterVec
}

// NewPipelineMetrics registers the derivative pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "derivative_duration_seconds",
		Help:    "Duration of derivative generation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"variant"})
	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "derivative_generated",
		Help: "Derivatives generated and stored.",
	}, []string{"variant"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "derivative_failed",
		Help: "Derivative generations that returned an error.",
	}, []string{"variant"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "derivative_skipped",
		Help: "Derivatives skipped by an applicability gate.",
	}, []string{"variant"})
	removed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_removed",
		Help: "Assets removed, derivatives included.",
	}, []string{"variant"})
	reg.MustRegister(duration, generated, failed, skipped, removed)
	return &PipelineMetrics{
		duration:  duration,
		generated: generated,
		failed:    failed,
		skipped:   skipped,
		removed:   removed,
	}
}

// ObserveDuration records the generation duration for the named variant.
func (p *PipelineMetrics) ObserveDuration(variant string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(variant)).Observe(duration.Seconds())
}

// IncGenerated increments the generated counter for the named variant.
func (p *PipelineMetrics) IncGenerated(variant string) {
	if p == nil || p.generated == nil {
		return
	}
	p.generated.WithLabelValues(normalizeLabel(variant)).Inc()
}

// IncFailed increments the failure counter for the named variant.
func (p *PipelineMetrics) IncFailed(variant string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(normalizeLabel(variant)).Inc()
}

// IncSkipped increments the skip counter for the named variant.
func (p *PipelineMetrics) IncSkipped(variant string) {
	if p == nil || p.skipped == nil {
		return
	}
	p.skipped.WithLabelValues(normalizeLabel(variant)).Inc()
}

// IncRemoved increments the removal counter for the named variant.
func (p *PipelineMetrics) IncRemoved(variant string) {
	if p == nil || p.removed == nil {
		return
	}
	p.removed.WithLabelValues(normalizeLabel(variant)).Inc()
}

func normalizeLabel(variant string) string {
	if variant == "" {
		return "unknown"
	}
	return variant
}
