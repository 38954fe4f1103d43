package similarity

import (
	"image"

	"promptarena/types"
)

// Detailed runs the combiner and presents each loss as a similarity score
// with its label and description.
func (s *Scorer) Detailed(a, b image.Image) (*types.SimilarityReport, error) {
	overall, breakdown, err := s.Combined(a, b)
	if err != nil {
		return nil, err
	}
	return NewReport(overall, breakdown), nil
}

// NewReport converts a combined loss and its breakdown into a report.
func NewReport(overall float64, breakdown Breakdown) *types.SimilarityReport {
	report := &types.SimilarityReport{
		OverallSimilarity: 1 - overall,
		OverallLoss:       overall,
		Components:        make(map[string]types.ComponentScore, len(breakdown)),
	}
	for _, m := range CoreMetrics {
		loss, ok := breakdown[m]
		if !ok {
			continue
		}
		report.Components[m.String()] = types.ComponentScore{
			Label:       m.Label(),
			Score:       1 - loss,
			Loss:        loss,
			Description: m.Description(),
		}
	}
	return report
}

// DetailedSimilarity reports the default combined score of a and b with the
// per-metric breakdown.
func DetailedSimilarity(a, b image.Image) (*types.SimilarityReport, error) {
	return defaultScorer.Detailed(a, b)
}
