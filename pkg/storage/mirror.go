package storage

import (
	"context"
	"fmt"
	"io"
)

// ReaderWrapper wraps source readers (e.g. for rate limiting)
type ReaderWrapper func(io.ReadCloser) io.ReadCloser

// MirrorStats counts the outcome of a mirror
type MirrorStats struct {
	Copied  int
	Skipped int
	Bytes   int64
}

// MirrorOptions controls a mirror
type MirrorOptions struct {
	// SkipExisting leaves destination files of the same size untouched
	SkipExisting bool

	// Wrap is applied to every source reader when set
	Wrap ReaderWrapper

	// OnFile is called after each file with its relative path and whether
	// it was skipped
	OnFile func(relativePath string, size int64, skipped bool)
}

// Mirror copies every file of src below prefix into dst, keeping relative
// paths. It stops at the first error.
func Mirror(ctx context.Context, src, dst Backend, prefix string, opts MirrorOptions) (*MirrorStats, error) {
	files, err := src.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", src.Root(), err)
	}

	stats := &MirrorStats{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if f.IsDir {
			continue
		}

		if opts.SkipExisting {
			if info, err := dst.Stat(ctx, f.RelativePath); err == nil && info.Size == f.Size {
				stats.Skipped++
				if opts.OnFile != nil {
					opts.OnFile(f.RelativePath, f.Size, true)
				}
				continue
			}
		}

		if err := copyFile(ctx, src, dst, f, opts.Wrap); err != nil {
			return stats, err
		}
		stats.Copied++
		stats.Bytes += f.Size
		if opts.OnFile != nil {
			opts.OnFile(f.RelativePath, f.Size, false)
		}
	}
	return stats, nil
}

func copyFile(ctx context.Context, src, dst Backend, f FileInfo, wrap ReaderWrapper) error {
	reader, err := src.Read(ctx, f.RelativePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	if wrap != nil {
		reader = wrap(reader)
	}
	defer reader.Close()

	if err := dst.Write(ctx, f.RelativePath, reader, f.Size, &f); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.RelativePath, err)
	}
	return nil
}
