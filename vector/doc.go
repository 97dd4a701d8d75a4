// Package vector provides the sparse term-weight vector used throughout kmeansmr.
//
// A Sparse vector stores only its non-zero entries as (index, value) pairs sorted
// by index. Absent indices are implicitly zero, so explicit zeros are never stored.
// Sorted storage lets the arithmetic (dot products, distances) run as a single
// merge scan over both operands.
//
// # Encodings
//
//   - Text: whitespace-separated "index:value" tokens, e.g. "3:0.5 17:0.25 42:0.25"
//   - Binary: uvarint count, uvarint index deltas and little-endian float64 values
//   - MessagePack: the binary form wrapped in a msgpack bin, used by the shuffle
//
// # Arithmetic
//
//	v, _ := vector.Parse("1:2.0 2:2.0")
//	n := vector.Normalize(v)               // 1:0.5 2:0.5
//	s := vector.CosineSimilarity(n, c)     // numerator-only dot product
//	d := vector.EuclideanDistance(n, c)
//
// Vectors are immutable by convention: every operation returns a new value and
// never writes through to its arguments.
package vector
