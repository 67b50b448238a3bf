// Package storage abstracts the trees scival reads and writes: local
// directories holding master and test products, and S3-compatible buckets
// that master sets are mirrored from. Relative paths are slash-separated
// on every backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// FileInfo describes one file of a backend
type FileInfo struct {
	// Path is the location usable outside the backend: an absolute file
	// path or an s3:// URL
	Path string

	// RelativePath is the slash-separated path below the backend root
	RelativePath string

	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Backend defines the interface for storage operations.
// Implementations include the local filesystem and S3-compatible object stores.
type Backend interface {
	// List returns all files under the specified path recursively, sorted
	// by relative path
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Read opens a file for reading
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or overwrites a file with the given content. A
	// negative size means unknown. If metadata is provided, the
	// modification time is kept where the backend supports it.
	Write(ctx context.Context, path string, reader io.Reader, size int64, metadata *FileInfo) error

	// Stat returns file metadata. A missing file yields an error matching
	// fs.ErrNotExist.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Root returns the location the backend is anchored at
	Root() string

	// Close releases any resources held by the backend
	Close() error
}

// Exists reports whether path is present in b
func Exists(ctx context.Context, b Backend, path string) (bool, error) {
	_, err := b.Stat(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
}
