package download

import (
	"context"
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"strings"
)

// maxChecksumSize bounds checksum file reads
const maxChecksumSize = 64 * 1024

// hasher computes the MD5 of everything written to it
type hasher struct {
	h    hash.Hash
	size int64
}

func newHasher() *hasher {
	return &hasher{h: md5.New()}
}

func (h *hasher) Write(p []byte) (int, error) {
	h.size += int64(len(p))
	return h.h.Write(p)
}

// Sum returns the hex digest
func (h *hasher) Sum() string {
	return fmt.Sprintf("%x", h.h.Sum(nil))
}

// Size returns the number of bytes hashed
func (h *hasher) Size() int64 {
	return h.size
}

// ParseChecksum extracts the digest from an md5sum-style line:
// "<hex digest>  <file name>" or a bare digest
func ParseChecksum(content string) (string, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file")
	}
	sum := strings.ToLower(fields[0])
	if len(sum) != md5.Size*2 {
		return "", fmt.Errorf("invalid MD5 digest %q", fields[0])
	}
	for _, c := range sum {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", fmt.Errorf("invalid MD5 digest %q", fields[0])
		}
	}
	return sum, nil
}

// verify fetches the checksum file at raw and compares it with got
func (f *Fetcher) verify(ctx context.Context, raw, got string) error {
	body, _, err := f.open(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to fetch checksum: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxChecksumSize))
	if err != nil {
		return fmt.Errorf("failed to read checksum: %w", err)
	}
	want, err := ParseChecksum(string(data))
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("MD5 mismatch: expected %s, got %s", want, got)
	}
	return nil
}
