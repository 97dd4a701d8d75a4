// Package hash provides checksum helpers for data integrity.
//
// All checksums use CRC32-Castagnoli (CRC32C), which Go computes with hardware
// instructions where available (SSE4.2, ARM CRC). Centroid blobs and shuffle
// spill frames carry a CRC32C of their payload so a torn or truncated write is
// detected on load rather than silently producing wrong centroids.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
