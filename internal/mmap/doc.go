// Package mmap provides read-only memory-mapped file access.
//
// The local blob store maps input and spill files instead of reading them into
// heap buffers; record scanning then walks the mapping sequentially.
//
//	m, err := mmap.Open("part-r-00000")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix uses mmap(2) and madvise(2); Windows uses CreateFileMapping and
// MapViewOfFile with Advise as a no-op.
//
// Close is idempotent. Callers must not touch Bytes() after Close returns.
package mmap
