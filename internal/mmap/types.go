package mmap

import "errors"

// AccessPattern is a paging hint passed to Advise.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	// AccessSequential suits record-at-a-time scans of input and spill files.
	AccessSequential
	// AccessWillNeed prefetches small blobs that are read in full.
	AccessWillNeed
)

var (
	ErrClosed        = errors.New("mmap: mapping is closed")
	ErrInvalidSize   = errors.New("mmap: invalid file size")
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
