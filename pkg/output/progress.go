package output

import (
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/sdejongh/scival/pkg/models"
)

const progressTemplate pb.ProgressBarTemplate = `{{string . "kind"}} {{counters . }} {{bar . }} {{percent . }}`

// Progress shows one bar per kind while pairs are compared. A nil or
// disabled Progress ignores every call.
type Progress struct {
	mu      sync.Mutex
	writer  io.Writer
	width   int
	enabled bool
	bar     *pb.ProgressBar
}

// NewProgress creates a progress display on w. It is disabled when w is a
// file that is not a terminal (pipe, redirect).
func NewProgress(w io.Writer, enabled bool) *Progress {
	if w == nil {
		w = os.Stderr
	}
	p := &Progress{writer: w, enabled: enabled}

	if file, ok := w.(*os.File); ok {
		fd := int(file.Fd())
		if !term.IsTerminal(fd) {
			p.enabled = false
		} else if width, _, err := term.GetSize(fd); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

// Enabled reports whether bars are drawn
func (p *Progress) Enabled() bool {
	return p != nil && p.enabled
}

// Start opens the bar of a kind with total pairs, closing any previous bar
func (p *Progress) Start(kind models.Kind, total int) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishLocked()
	bar := progressTemplate.New(total)
	bar.Set("kind", string(kind))
	bar.SetWriter(p.writer)
	if p.width > 0 {
		bar.SetWidth(p.width)
	}
	p.bar = bar.Start()
}

// Increment advances the current bar by one pair
func (p *Progress) Increment() {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		p.bar.Increment()
	}
}

// Finish closes the current bar
func (p *Progress) Finish() {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishLocked()
}

func (p *Progress) finishLocked() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
