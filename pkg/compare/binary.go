package compare

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// BinaryComparator compares files byte-by-byte
type BinaryComparator struct {
	bufferSize int
	bufferPool *sync.Pool
}

// NewBinaryComparator creates a new byte-by-byte comparator
func NewBinaryComparator(bufferSize int) *BinaryComparator {
	if bufferSize < 4096 {
		bufferSize = 4096
	}
	return &BinaryComparator{
		bufferSize: bufferSize,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}
}

// Equal reports whether two files hold the same bytes. The offset of the
// first difference is -1 when the files are equal.
func (c *BinaryComparator) Equal(ctx context.Context, masterPath, testPath string) (bool, int64, error) {
	mi, err := os.Stat(masterPath)
	if err != nil {
		return false, -1, fmt.Errorf("failed to stat master: %w", err)
	}
	ti, err := os.Stat(testPath)
	if err != nil {
		return false, -1, fmt.Errorf("failed to stat test: %w", err)
	}

	// Quick check: if sizes differ, files are different
	if mi.Size() != ti.Size() {
		return false, min(mi.Size(), ti.Size()), nil
	}

	master, err := os.Open(masterPath)
	if err != nil {
		return false, -1, fmt.Errorf("failed to open master file: %w", err)
	}
	defer master.Close()

	test, err := os.Open(testPath)
	if err != nil {
		return false, -1, fmt.Errorf("failed to open test file: %w", err)
	}
	defer test.Close()

	masterBufPtr := c.bufferPool.Get().(*[]byte)
	defer c.bufferPool.Put(masterBufPtr)
	masterBuf := *masterBufPtr

	testBufPtr := c.bufferPool.Get().(*[]byte)
	defer c.bufferPool.Put(testBufPtr)
	testBuf := *testBufPtr

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return false, -1, ctx.Err()
		default:
		}

		// ReadFull keeps both sides aligned on short reads
		mn, merr := io.ReadFull(master, masterBuf)
		tn, terr := io.ReadFull(test, testBuf)

		n := min(mn, tn)
		if !bytes.Equal(masterBuf[:n], testBuf[:n]) {
			for i := 0; i < n; i++ {
				if masterBuf[i] != testBuf[i] {
					return false, offset + int64(i), nil
				}
			}
		}
		if mn != tn {
			return false, offset + int64(n), nil
		}
		offset += int64(n)

		mdone := merr == io.EOF || merr == io.ErrUnexpectedEOF
		tdone := terr == io.EOF || terr == io.ErrUnexpectedEOF
		switch {
		case merr != nil && !mdone:
			return false, -1, fmt.Errorf("failed to read master: %w", merr)
		case terr != nil && !tdone:
			return false, -1, fmt.Errorf("failed to read test: %w", terr)
		case mdone && tdone:
			return true, -1, nil
		case mdone != tdone:
			return false, offset, nil
		}
	}
}

// Name returns the comparator name
func (c *BinaryComparator) Name() string {
	return "binary"
}
