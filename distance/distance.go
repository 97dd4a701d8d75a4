package distance

import (
	"fmt"
	"strings"

	"github.com/hupe1980/kmeansmr/vector"
)

// Metric represents the comparison used to pick the nearest centroid.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricEuclidean:
		return "Euclidean"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ErrInvalidMetric indicates an unsupported metric.
type ErrInvalidMetric struct {
	Metric Metric
	Name   string
}

func (e *ErrInvalidMetric) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid metric: %q", e.Name)
	}
	return fmt.Sprintf("invalid metric: %v", e.Metric)
}

// ParseMetric parses a metric name ("cosine" or "euclidean", case-insensitive).
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return 0, &ErrInvalidMetric{Name: name}
	}
}

// Func scores a pair of vectors.
type Func func(a, b vector.Sparse) float64

// Provider returns the scoring function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return vector.CosineSimilarity, nil
	case MetricEuclidean:
		return vector.EuclideanDistance, nil
	default:
		return nil, &ErrInvalidMetric{Metric: m}
	}
}

// Better reports whether score a is strictly closer than score b under m.
// Similarities prefer larger scores, distances smaller ones. Equal scores are
// never better, which makes a forward scan keep the lowest index on ties.
func (m Metric) Better(a, b float64) bool {
	if m == MetricEuclidean {
		return a < b
	}
	return a > b
}
