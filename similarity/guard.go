package similarity

import (
	"math"
	"time"

	"promptarena/logging"
)

// degenerateLoss replaces a metric value that is not a number.
const degenerateLoss = 1.0

// Observer receives timing and fallback events from a Scorer.
type Observer interface {
	ObserveMetric(m Metric, elapsed time.Duration)
	ObserveFallback(m Metric)
}

type nopObserver struct{}

func (nopObserver) ObserveMetric(Metric, time.Duration) {}
func (nopObserver) ObserveFallback(Metric)              {}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// finish turns a raw metric value into a loss in [0,1], substituting the
// degenerate sentinel for NaN and infinities.
func (s *Scorer) finish(m Metric, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		logging.LogWarning("%s metric produced %v, substituting %.1f", m, v, degenerateLoss)
		s.observer.ObserveFallback(m)
		return degenerateLoss
	}
	return clamp01(v)
}
