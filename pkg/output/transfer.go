package output

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"
)

const transferTemplate pb.ProgressBarTemplate = `{{string . "label"}} {{counters . }} {{speed . }}`

// Progress reporting thresholds
const (
	transferReportInterval = 50 * time.Millisecond // Minimum time between progress reports
	transferReportBytes    = 64 * 1024             // Minimum bytes between reports (64KB)
)

// Transfer shows the bytes moved by concurrent downloads on one bar.
// A nil or disabled Transfer passes readers through untouched.
type Transfer struct {
	mu  sync.Mutex
	bar *pb.ProgressBar
}

// NewTransfer starts a byte counter on w. It is disabled when w is a file
// that is not a terminal.
func NewTransfer(w io.Writer, label string, enabled bool) *Transfer {
	if w == nil {
		w = os.Stderr
	}
	if file, ok := w.(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		enabled = false
	}
	if !enabled {
		return &Transfer{}
	}

	bar := transferTemplate.New(0)
	bar.Set(pb.Bytes, true)
	bar.Set("label", label)
	bar.SetWriter(w)
	return &Transfer{bar: bar.Start()}
}

// Enabled reports whether the counter is drawn
func (t *Transfer) Enabled() bool {
	return t != nil && t.bar != nil
}

// Wrap counts the bytes read through rc
func (t *Transfer) Wrap(rc io.ReadCloser) io.ReadCloser {
	if !t.Enabled() {
		return rc
	}
	return &progressReader{ReadCloser: rc, onProgress: t.add}
}

func (t *Transfer) add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bar.Add64(n)
}

// Finish stops the counter
func (t *Transfer) Finish() {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bar.Finish()
}

// progressReader reports bytes read in batches
type progressReader struct {
	io.ReadCloser
	pending        int64
	lastReportTime time.Time
	onProgress     func(delta int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.ReadCloser.Read(p)
	if n > 0 {
		pr.pending += int64(n)

		if pr.pending >= transferReportBytes || time.Since(pr.lastReportTime) >= transferReportInterval {
			pr.flush()
		}
	}
	// Always flush at the end
	if err != nil {
		pr.flush()
	}
	return n, err
}

func (pr *progressReader) Close() error {
	pr.flush()
	return pr.ReadCloser.Close()
}

func (pr *progressReader) flush() {
	if pr.pending == 0 {
		return
	}
	pr.onProgress(pr.pending)
	pr.pending = 0
	pr.lastReportTime = time.Now()
}
