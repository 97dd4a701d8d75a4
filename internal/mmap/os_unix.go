//go:build unix

package mmap

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}
	return data, unix.Munmap, nil
}

var advice = map[AccessPattern]int{
	AccessDefault:    unix.MADV_NORMAL,
	AccessSequential: unix.MADV_SEQUENTIAL,
	AccessWillNeed:   unix.MADV_WILLNEED,
}

func osAdvise(data []byte, pattern AccessPattern) error {
	adv, ok := advice[pattern]
	if !ok {
		adv = unix.MADV_NORMAL
	}
	// Hints on unaligned slices fail with EINVAL and are dropped.
	if err := unix.Madvise(data, adv); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}
