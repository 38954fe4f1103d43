// Package metrics exports scoring telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptarena/similarity"
)

// Prometheus records metric timings and degenerate fallbacks. It implements
// similarity.Observer.
type Prometheus struct {
	Registry  *prometheus.Registry
	Durations *prometheus.HistogramVec
	Fallbacks *prometheus.CounterVec
	Requests  *prometheus.CounterVec
}

// NewPrometheusMetrics builds the collectors on a private registry
func NewPrometheusMetrics() *Prometheus {
	p := &Prometheus{
		Registry: prometheus.NewRegistry(),
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "promptarena",
				Name:      "metric_duration_seconds",
				Help:      "Time spent computing one similarity metric.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"metric"}),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptarena",
				Name:      "metric_fallbacks_total",
				Help:      "Metric results replaced by the maximum loss because they were not finite.",
			}, []string{"metric"}),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "promptarena",
				Name:      "compare_requests_total",
				Help:      "Comparison requests by metric and outcome.",
			}, []string{"metric", "outcome"}),
	}
	p.Registry.MustRegister(p.Durations, p.Fallbacks, p.Requests)
	return p
}

// ObserveMetric records how long one metric took
func (p *Prometheus) ObserveMetric(m similarity.Metric, elapsed time.Duration) {
	p.Durations.WithLabelValues(m.String()).Observe(elapsed.Seconds())
}

// ObserveFallback counts a non-finite result
func (p *Prometheus) ObserveFallback(m similarity.Metric) {
	p.Fallbacks.WithLabelValues(m.String()).Inc()
}

// ObserveRequest counts one API comparison
func (p *Prometheus) ObserveRequest(metric string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	p.Requests.WithLabelValues(metric, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}
