package similarity

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Weights assigns a non-negative weight to each core metric. Weights are
// renormalized by their sum, so they need not add up to one.
type Weights map[Metric]float64

// Breakdown holds the loss of every core metric for one comparison.
type Breakdown map[Metric]float64

// DefaultWeights returns the standard blend, favoring structure and color.
func DefaultWeights() Weights {
	return Weights{
		MetricPixel:      0.15,
		MetricStructural: 0.30,
		MetricHistogram:  0.25,
		MetricEdge:       0.15,
		MetricFeature:    0.15,
	}
}

// Validate checks that every key is a core metric, every value is a finite
// non-negative number, and the total is positive.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no weights given", ErrInvalidWeights)
	}
	var total float64
	for m, v := range w {
		if !m.IsCore() {
			return fmt.Errorf("%w: %s cannot be weighted", ErrInvalidWeights, m)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s weight %v", ErrInvalidWeights, m, v)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}
	return nil
}

// Scorer evaluates metrics with a fixed weight vector. It is safe for
// concurrent use.
type Scorer struct {
	weights  Weights
	parallel bool
	observer Observer
}

// Option configures a Scorer
type Option func(*Scorer)

// WithWeights replaces the default weight vector
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

// WithParallel toggles concurrent evaluation of the core metrics
func WithParallel(parallel bool) Option {
	return func(s *Scorer) {
		s.parallel = parallel
	}
}

// WithObserver attaches an Observer for timings and fallbacks
func WithObserver(o Observer) Option {
	return func(s *Scorer) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewScorer builds a Scorer. It fails when the configured weights are invalid.
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{
		weights:  DefaultWeights(),
		parallel: true,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	s.weights = copyWeights(s.weights)
	return s, nil
}

var defaultScorer = &Scorer{
	weights:  DefaultWeights(),
	parallel: true,
	observer: nopObserver{},
}

func copyWeights(w Weights) Weights {
	out := make(Weights, len(w))
	for m, v := range w {
		out[m] = v
	}
	return out
}

// Weights returns a copy of the scorer's weight vector
func (s *Scorer) Weights() Weights {
	return copyWeights(s.weights)
}

type rawMetric func(a, b image.Image) (float64, error)

func rawMetricFor(m Metric) (rawMetric, bool) {
	switch m {
	case MetricPixel:
		return pixelColorLoss, true
	case MetricStructural:
		return structuralLoss, true
	case MetricHistogram:
		return histogramLoss, true
	case MetricEdge:
		return edgeLoss, true
	case MetricFeature:
		return featureLoss, true
	}
	return nil, false
}

// Single evaluates one core metric.
func (s *Scorer) Single(m Metric, a, b image.Image) (float64, error) {
	fn, ok := rawMetricFor(m)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a core metric", ErrInvalidMetric, m)
	}
	start := time.Now()
	v, err := fn(a, b)
	s.observer.ObserveMetric(m, time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("%s metric: %w", m, err)
	}
	return s.finish(m, v), nil
}

// Combined computes the weighted loss using the scorer's weights.
func (s *Scorer) Combined(a, b image.Image) (float64, Breakdown, error) {
	return s.combine(a, b, s.weights)
}

// CombinedWith computes the weighted loss with an explicit weight vector.
// A nil vector selects the scorer's own weights.
func (s *Scorer) CombinedWith(a, b image.Image, w Weights) (float64, Breakdown, error) {
	if w == nil {
		w = s.weights
	} else if err := w.Validate(); err != nil {
		return 0, nil, err
	}
	return s.combine(a, b, w)
}

func (s *Scorer) combine(a, b image.Image, w Weights) (float64, Breakdown, error) {
	if err := multierr.Append(validate(a), validate(b)); err != nil {
		return 0, nil, err
	}
	start := time.Now()
	// Convert once up front instead of once per metric.
	ra, err := asRGB(a)
	if err != nil {
		return 0, nil, err
	}
	rb, err := asRGB(b)
	if err != nil {
		return 0, nil, err
	}
	a, b = ra, rb

	losses := make([]float64, len(CoreMetrics))
	errs := make([]error, len(CoreMetrics))
	var wg sync.WaitGroup
	for i, m := range CoreMetrics {
		if !s.parallel {
			losses[i], errs[i] = s.Single(m, a, b)
			continue
		}
		wg.Add(1)
		go func(i int, m Metric) {
			defer wg.Done()
			losses[i], errs[i] = s.Single(m, a, b)
		}(i, m)
	}
	wg.Wait()
	if err := multierr.Combine(errs...); err != nil {
		return 0, nil, err
	}

	breakdown := make(Breakdown, len(CoreMetrics))
	var weighted, total float64
	for i, m := range CoreMetrics {
		breakdown[m] = losses[i]
		if wt, ok := w[m]; ok {
			weighted += wt * losses[i]
			total += wt
		}
	}
	s.observer.ObserveMetric(MetricCombined, time.Since(start))
	return s.finish(MetricCombined, weighted/total), breakdown, nil
}

// CombinedSimilarity computes the weighted loss of a and b together with the
// individual metric losses. Nil weights select DefaultWeights.
func CombinedSimilarity(a, b image.Image, w Weights) (float64, Breakdown, error) {
	return defaultScorer.CombinedWith(a, b, w)
}

// PixelColorLoss compares mean RGB differences at 224x224.
func PixelColorLoss(a, b image.Image) (float64, error) {
	return defaultScorer.Single(MetricPixel, a, b)
}

// StructuralDistance compares luminance structure with SSIM.
func StructuralDistance(a, b image.Image) (float64, error) {
	return defaultScorer.Single(MetricStructural, a, b)
}

// HistogramDistance compares HSV color distributions.
func HistogramDistance(a, b image.Image) (float64, error) {
	return defaultScorer.Single(MetricHistogram, a, b)
}

// EdgeDistance compares Canny edge maps.
func EdgeDistance(a, b image.Image) (float64, error) {
	return defaultScorer.Single(MetricEdge, a, b)
}

// FeatureDistance compares HOG descriptors.
func FeatureDistance(a, b image.Image) (float64, error) {
	return defaultScorer.Single(MetricFeature, a, b)
}
