// Package resource bounds the resources a map/reduce job may consume.
//
// The Controller manages three resource types:
//
//   - Memory: Track and limit bytes held in shuffle buffers (non-blocking, fail-fast)
//   - Concurrency: Limit the number of map and reduce tasks running at once
//   - IO: Rate-limit shuffle spill traffic to the blob store
//
// # Memory Management
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded if the limit
// would be exceeded. Map tasks react by spilling their buffers early:
//
//	if err := rc.AcquireMemory(n); err != nil {
//	    // flush buffers, then retry
//	}
//	defer rc.ReleaseMemory(n)
//
// # Task Slots
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # IO Rate Limiting
//
//	if err := rc.AcquireIO(ctx, len(spill)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
