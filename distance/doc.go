// Package distance selects the vector comparison used by the assignment stage.
//
// # Supported Metrics
//
//   - MetricCosine: numerator-only cosine similarity (higher is closer, default)
//   - MetricEuclidean: Euclidean distance (lower is closer)
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricCosine)
//	score := fn(centroid, v)
//	if distance.MetricCosine.Better(score, best) { ... }
package distance
