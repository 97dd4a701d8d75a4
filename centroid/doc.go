// Package centroid holds the per-round centroid sets and the stores that
// publish them between rounds.
//
// A round's set is written once and never modified. Publishing round r+1
// makes it the latest round in a single atomic step; readers that loaded round
// r keep their snapshot.
//
// # Implementations
//
//   - BlobStore: one blob per centroid plus a JSON manifest, committed by
//     replacing the CURRENT pointer on any blobstore.Store
//   - BadgerStore: a Badger key-value database; a round and the pointer to it
//     are committed in one transaction
//   - CachedStore: an LRU of decoded sets in front of another Store
package centroid
