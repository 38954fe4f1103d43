package similarity

import (
	"fmt"
	"image"

	"promptarena/types"
)

// Loss converts both images to RGB and evaluates the given metric.
func (s *Scorer) Loss(a, b image.Image, m Metric) (float64, error) {
	if !m.valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidMetric, m)
	}
	ra, err := ToRGB(a)
	if err != nil {
		return 0, err
	}
	rb, err := ToRGB(b)
	if err != nil {
		return 0, err
	}
	if m == MetricCombined {
		loss, _, err := s.Combined(ra, rb)
		return loss, err
	}
	return s.Single(m, ra, rb)
}

// LossByName is Loss with the metric given by its key.
func (s *Scorer) LossByName(a, b image.Image, name string) (float64, error) {
	m, err := ParseMetric(name)
	if err != nil {
		return 0, err
	}
	return s.Loss(a, b, m)
}

// GetLoss evaluates one metric with the default weights.
func GetLoss(a, b image.Image, m Metric) (float64, error) {
	return defaultScorer.Loss(a, b, m)
}

// GetLossByName evaluates the metric named by key with the default weights.
// Unknown keys fail with ErrInvalidMetric.
func GetLossByName(a, b image.Image, name string) (float64, error) {
	return defaultScorer.LossByName(a, b, name)
}

// GetDetailedComparison converts both images to RGB and returns the detailed
// report.
func GetDetailedComparison(a, b image.Image) (*types.SimilarityReport, error) {
	ra, err := ToRGB(a)
	if err != nil {
		return nil, err
	}
	rb, err := ToRGB(b)
	if err != nil {
		return nil, err
	}
	return defaultScorer.Detailed(ra, rb)
}
