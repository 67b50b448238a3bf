package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// TestNewLimiter tests the Limiter constructor
func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name      string
		rate      int64
		wantNil   bool
		wantBurst int
	}{
		{"Zero", 0, true, 0},
		{"Negative", -100, true, 0},
		{"Small", 1000, false, minBurst},
		{"Large", 100 * 1024 * 1024, false, 100 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewLimiter(tt.rate)
			if tt.wantNil {
				if limiter != nil {
					t.Errorf("NewLimiter(%d) should return nil", tt.rate)
				}
				return
			}
			if limiter == nil {
				t.Fatalf("NewLimiter(%d) returned nil", tt.rate)
			}
			if limiter.BytesPerSecond() != tt.rate {
				t.Errorf("BytesPerSecond() = %d, want %d", limiter.BytesPerSecond(), tt.rate)
			}
			if limiter.Burst() != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", limiter.Burst(), tt.wantBurst)
			}
		})
	}
}

// TestNewReader tests the Reader constructor
func TestNewReader(t *testing.T) {
	base := strings.NewReader("content")

	if r := NewReader(context.Background(), base, nil); r != base {
		t.Error("NewReader() should return the original reader when limiter is nil")
	}
	if _, ok := NewReader(context.Background(), base, NewLimiter(1024)).(*Reader); !ok {
		t.Error("NewReader() should return *Reader when a limiter is given")
	}
}

// TestReaderRead tests reading through the limiter
func TestReaderRead(t *testing.T) {
	t.Run("FullContent", func(t *testing.T) {
		content := bytes.Repeat([]byte("x"), 10000)
		reader := NewReader(context.Background(), bytes.NewReader(content), NewLimiter(10*1024*1024))

		got, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("read %d bytes, want %d", len(got), len(content))
		}
	})

	t.Run("ChunkedToBurst", func(t *testing.T) {
		limiter := NewLimiter(1000)
		reader := NewReader(context.Background(), bytes.NewReader(make([]byte, 2*minBurst)), limiter)

		buf := make([]byte, 2*minBurst)
		n, err := reader.Read(buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if n > minBurst {
			t.Errorf("Read() returned %d bytes, want at most %d", n, minBurst)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		reader := NewReader(ctx, strings.NewReader("data"), NewLimiter(1024))
		if _, err := reader.Read(make([]byte, 4)); !errors.Is(err, context.Canceled) {
			t.Errorf("Read() error = %v, want context.Canceled", err)
		}
	})
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

// TestReadCloser tests the ReadCloser wrapper
func TestReadCloser(t *testing.T) {
	rc := &closeRecorder{Reader: strings.NewReader("payload")}

	if got := NewReadCloser(context.Background(), rc, nil); got != io.ReadCloser(rc) {
		t.Error("NewReadCloser() should return the original when limiter is nil")
	}

	wrapped := NewReadCloser(context.Background(), rc, NewLimiter(1024*1024))
	data, err := io.ReadAll(wrapped)
	if err != nil || string(data) != "payload" {
		t.Fatalf("ReadAll() = %q, %v", data, err)
	}
	if err := wrapped.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !rc.closed {
		t.Error("Close() did not reach the underlying reader")
	}
}

// TestRateLimiting checks that the limiter actually slows a transfer
func TestRateLimiting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	// burst is 64KB, so 64KB + 32KB at 64KB/s needs roughly half a second
	limiter := NewLimiter(minBurst)
	reader := NewReader(context.Background(), bytes.NewReader(make([]byte, minBurst+minBurst/2)), limiter)

	start := time.Now()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("transfer took %v, expected rate limiting to slow it down", elapsed)
	}
}
