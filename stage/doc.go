// Package stage holds the mappers and reducers of the clustering pipeline.
//
// A run is a sequence of mapreduce jobs:
//
//   - normalize: Normalizer parses "id<TAB>vector" lines and scales every
//     vector to unit L1 mass. NormalizeReducer writes the normalized corpus
//     and the first vector of each partition as a seed centroid.
//   - cluster: Assigner maps each vector to its nearest centroid of the
//     current round. Aggregator (Refine) recomputes the cluster means.
//   - final: the same assignment, with Aggregator (Terminal) writing cluster
//     membership, the final centroids, prototypes and cohesion statistics.
//
// Mappers and reducers load their round's centroid.Set in Setup and own it
// for the lifetime of the task.
package stage
