package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sdejongh/scival/pkg/models"
)

// HumanFormatter writes the report as a readable text document. Every
// result line names both compared paths.
type HumanFormatter struct {
	// ShowMatches lists matching pairs as well as failures
	ShowMatches bool

	// ShowTiming adds the run duration; off by default so that two runs on
	// the same inputs produce identical output
	ShowTiming bool
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Format writes report to w
func (f *HumanFormatter) Format(w io.Writer, report *models.Report) error {
	ew := &errWriter{w: w}
	stats := report.Stats()

	ew.printf("Validation Report\n")
	ew.printf("=================\n\n")
	ew.printf("Master: %s\n", report.MasterRoot)
	ew.printf("Test:   %s\n", report.TestRoot)
	ew.printf("NoData masking: %s\n", onOff(report.MaskNoData))
	if f.ShowTiming {
		ew.printf("Duration: %s\n", formatDuration(report.Duration))
	}
	ew.printf("\n")

	ew.printf("Summary:\n")
	ew.printf("  Pairs compared: %d\n", stats.Pairs)
	ew.printf("  Matches:        %d\n", stats.Matches)
	ew.printf("  Warnings:       %d\n", stats.Warnings)
	ew.printf("  Failures:       %d\n", stats.Failures)
	ew.printf("  Unreadable:     %d\n", stats.Unreadable)
	ew.printf("  Master only:    %d\n", stats.MasterOnly)
	ew.printf("  Test only:      %d\n", stats.TestOnly)
	if stats.Unpaired > 0 {
		ew.printf("  Not compared:   %d\n", stats.Unpaired)
	}
	ew.printf("\n")
	ew.printf("Status: %s\n\n", report.Status)

	if len(report.Warnings) > 0 {
		f.heading(ew, fmt.Sprintf("Warnings (%d)", len(report.Warnings)))
		for _, msg := range report.Warnings {
			ew.printf("  %s\n", msg)
		}
		ew.printf("\n")
	}

	f.unmatched(ew, "Only in Master", report.MasterOnly)
	f.unmatched(ew, "Only in Test", report.TestOnly)
	f.unmatched(ew, "Not Compared (kind missing from one tree)", report.Unpaired)

	groups := groupByKind(report.Entries)
	for _, kind := range kindOrder {
		entries := groups[kind]
		if len(entries) == 0 || (kind == models.ResultMatch && !f.ShowMatches) {
			continue
		}

		f.heading(ew, fmt.Sprintf("%s (%d pairs)", kindLabels[kind], len(entries)))
		for _, e := range entries {
			f.entry(ew, e)
		}
		ew.printf("\n")
	}

	return ew.err
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func (f *HumanFormatter) heading(ew *errWriter, label string) {
	ew.printf("%s\n", label)
	ew.printf("%s\n", strings.Repeat("-", len(label)))
}

func (f *HumanFormatter) unmatched(ew *errWriter, label string, files []models.UnmatchedFile) {
	if len(files) == 0 {
		return
	}
	f.heading(ew, fmt.Sprintf("%s (%d files)", label, len(files)))
	for _, file := range files {
		ew.printf("  [%s] %s\n", file.Kind, file.Path)
	}
	ew.printf("\n")
}

func (f *HumanFormatter) entry(ew *errWriter, e models.Entry) {
	res := e.Result
	ew.printf("  [%s] %s <-> %s: %s\n", res.Severity(), e.Pair.MasterPath, e.Pair.TestPath, res.Summary())

	switch res.Kind {
	case models.ResultProjectionMismatch, models.ResultGeoTransformMismatch:
		ew.printf("    master: %s\n", res.Master)
		ew.printf("    test:   %s\n", res.Test)
	case models.ResultPixelMismatch:
		if res.Diff != nil && len(res.Diff.Bands) > 0 {
			ew.printf("    bands: %s\n", joinInts(res.Diff.Bands))
		}
		if res.DiffImage != "" {
			ew.printf("    diff image: %s\n", res.DiffImage)
		}
	case models.ResultSchemaInvalid:
		for _, v := range res.Violations {
			ew.printf("    %s\n", v)
		}
	case models.ResultTextDiff:
		for _, line := range res.Removed {
			ew.printf("    - %s\n", line)
		}
		for _, line := range res.Added {
			ew.printf("    + %s\n", line)
		}
	case models.ResultSizeMismatch:
		ew.printf("    master: %s, test: %s\n", formatBytes(res.MasterBytes), formatBytes(res.TestBytes))
	}

	for _, note := range res.Notes {
		ew.printf("    note: %s\n", note)
	}
}

// errWriter keeps the first write error so formatting code stays linear
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// formatBytes formats bytes in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
