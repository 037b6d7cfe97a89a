package hooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Skryldev/variant-cache/core"
)

const namespace = "variantcache"

// PrometheusCollector exports transform and decision metrics.
type PrometheusCollector struct {
	stepDuration *prometheus.HistogramVec
	stepErrors   *prometheus.CounterVec
	bytesOut     prometheus.Counter
	decisions    *prometheus.CounterVec
}

// NewPrometheusCollector registers its metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		stepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of transform steps in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		stepErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_errors_total",
				Help:      "Total number of failed transform steps",
			},
			[]string{"step", "category"},
		),
		bytesOut: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "encoded_bytes_total",
				Help:      "Total bytes of generated variants",
			},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Requests by decision outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (p *PrometheusCollector) RecordProcessingTime(step string, d interface{ Seconds() float64 }) {
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordThroughput(bytes int64) {
	p.bytesOut.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordError(step, category string) {
	p.stepErrors.WithLabelValues(step, category).Inc()
}

func (p *PrometheusCollector) RecordDecision(outcome string) {
	p.decisions.WithLabelValues(outcome).Inc()
}

var _ core.MetricsCollector = (*PrometheusCollector)(nil)
