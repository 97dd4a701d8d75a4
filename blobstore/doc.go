// Package blobstore is the storage substrate for pipeline inputs, job outputs,
// shuffle spills and published centroid rounds.
//
// Blobs are addressed by slash-separated names relative to a store root.
// Put is atomic: readers observe either the previous blob or the complete new
// one, never a partial write. Create streams a blob that becomes visible on
// Close; Abort discards it.
//
// # Implementations
//
//   - LocalStore: local filesystem; reads are memory-mapped, writes go through
//     a temporary file and rename
//   - MemoryStore: in-process map, used by tests
//   - CachingStore: LRU read-through cache in front of any Store
//   - s3.Store, s3.DDBCommitStore: Amazon S3, optionally with DynamoDB for
//     conditional CURRENT commits
//   - minio.Store: MinIO and other S3-compatible services
//
// All implementations are safe for concurrent use.
package blobstore
