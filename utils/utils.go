package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"promptarena/similarity"
)

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "promptarena.db"
	}

	// Return the default database path in the same directory
	return filepath.Join(filepath.Dir(exePath), "promptarena.db")
}

// ParseWeights parses "pixel=0.2,structural=0.3,..." into a weight vector.
// The result is validated, so unknown keys, negative values and an all-zero
// vector are rejected.
func ParseWeights(s string) (similarity.Weights, error) {
	weights := similarity.Weights{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: %q is not metric=value", similarity.ErrInvalidWeights, part)
		}
		m, err := similarity.ParseMetric(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", similarity.ErrInvalidWeights, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad value for %s: %v", similarity.ErrInvalidWeights, m, err)
		}
		weights[m] = v
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return weights, nil
}

// ParseLossThreshold parses and validates a loss cutoff in [0,1]. On error
// the returned value is the default of 1, which keeps everything.
func ParseLossThreshold(thresholdStr string) (float64, error) {
	parsed, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return 1, fmt.Errorf("invalid loss threshold '%s', using default (1.0)", thresholdStr)
	}
	return parsed, nil
}
