// Package similarity scores how visually alike two images are.
//
// Every metric returns a loss in [0,1] where 0 means identical. The five core
// metrics (pixel, structural, histogram, edge, feature) can be used on their
// own or folded into one weighted loss by the combined metric.
package similarity

import (
	"fmt"
	"strings"
)

// Metric names one of the scoring strategies. The set is closed.
type Metric int

const (
	MetricCombined Metric = iota
	MetricPixel
	MetricStructural
	MetricHistogram
	MetricEdge
	MetricFeature
)

var metricNames = [...]string{
	MetricCombined:   "combined",
	MetricPixel:      "pixel",
	MetricStructural: "structural",
	MetricHistogram:  "histogram",
	MetricEdge:       "edge",
	MetricFeature:    "feature",
}

// CoreMetrics lists the metrics the combined score is built from, in the
// order they are summed.
var CoreMetrics = []Metric{
	MetricPixel,
	MetricStructural,
	MetricHistogram,
	MetricEdge,
	MetricFeature,
}

// ParseMetric maps a metric key to its Metric. Unknown keys fail with
// ErrInvalidMetric.
func ParseMetric(name string) (Metric, error) {
	for m, n := range metricNames {
		if n == name {
			return Metric(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidMetric, name, strings.Join(MetricNames(), ", "))
}

// MetricNames returns every valid metric key
func MetricNames() []string {
	names := make([]string, len(metricNames))
	copy(names, metricNames[:])
	return names
}

func (m Metric) String() string {
	if m.valid() {
		return metricNames[m]
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// IsCore reports whether m is one of the five metrics the combiner uses.
func (m Metric) IsCore() bool {
	return m.valid() && m != MetricCombined
}

func (m Metric) valid() bool {
	return m >= 0 && int(m) < len(metricNames)
}

// MarshalText implements encoding.TextMarshaler
func (m Metric) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMetric, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

var componentInfo = map[Metric]struct {
	label       string
	description string
}{
	MetricPixel:      {"pixel_color", "Pixel-by-pixel RGB color similarity"},
	MetricStructural: {"structural", "Structural pattern similarity (texture, lighting, structures)"},
	MetricHistogram:  {"color_distribution", "Overall color palette and distribution similarity"},
	MetricEdge:       {"edge_features", "Similarity of edges and contours"},
	MetricFeature:    {"visual_features", "Similarity of detected visual features and patterns"},
}

// Label returns the presentation label used in similarity reports
func (m Metric) Label() string {
	if info, ok := componentInfo[m]; ok {
		return info.label
	}
	return m.String()
}

// Description returns a human-readable explanation of the metric
func (m Metric) Description() string {
	if info, ok := componentInfo[m]; ok {
		return info.description
	}
	if m == MetricCombined {
		return "Weighted combination of all core metrics"
	}
	return ""
}
