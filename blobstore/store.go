package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for names that are empty, absolute or escape the
// store root.
var ErrInvalidName = errors.New("blobstore: invalid blob name")

// Store reads and writes named blobs.
type Store interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Put writes a whole blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Create starts a streaming write.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlob is a blob under construction.
type WritableBlob interface {
	io.Writer
	// Close publishes the blob.
	io.Closer
	// Abort discards everything written so far. It is a no-op after Close.
	Abort() error
}

// ReadAll opens name and reads it to the end.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	r, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// DeletePrefix removes every blob under prefix.
func DeletePrefix(ctx context.Context, s Store, prefix string) error {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

// Join joins name elements with slashes.
func Join(elem ...string) string {
	return path.Join(elem...)
}

// CleanName validates name and returns it in canonical form.
func CleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}
