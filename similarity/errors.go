package similarity

import "errors"

var (
	// ErrInvalidMetric is returned for a metric key outside the closed set.
	ErrInvalidMetric = errors.New("invalid metric name")

	// ErrInvalidInput is returned for nil, zero-sized or unconvertible images.
	ErrInvalidInput = errors.New("invalid input image")

	// ErrInvalidWeights is returned for negative, unknown or zero-sum weights.
	ErrInvalidWeights = errors.New("invalid weight vector")
)
