package models

import (
	"time"
)

// Report is the outcome of one validation run. Entries are kept in the
// order pairs were produced, which makes the serialized report stable
// across runs on unchanged inputs.
type Report struct {
	// RunID and timing identify the run in logs; they are not serialized
	// so that two runs on the same inputs produce identical reports
	RunID     string        `json:"-"`
	StartTime time.Time     `json:"-"`
	EndTime   time.Time     `json:"-"`
	Duration  time.Duration `json:"-"`

	MasterRoot string `json:"master_root"`
	TestRoot   string `json:"test_root"`
	MaskNoData bool   `json:"mask_nodata"`

	// Entries holds every compared pair and its result
	Entries []Entry `json:"entries"`

	// MasterOnly and TestOnly hold files without a counterpart
	MasterOnly []UnmatchedFile `json:"master_only"`
	TestOnly   []UnmatchedFile `json:"test_only"`

	// Skipped lists kinds absent from at least one tree
	Skipped []Kind `json:"skipped,omitempty"`

	// Unpaired holds the files of skipped kinds. They are warnings only.
	Unpaired []UnmatchedFile `json:"unpaired,omitempty"`

	// Warnings holds run-level diagnostics that are not tied to a pair
	Warnings []string `json:"warnings,omitempty"`

	Status RunStatus `json:"status"`
}

// Entry is one compared pair and its classified result
type Entry struct {
	Pair   FilePair   `json:"pair"`
	Result DiffResult `json:"result"`
}

// Stats summarizes a report
type Stats struct {
	Pairs      int
	Matches    int
	Warnings   int
	Failures   int
	Unreadable int
	MasterOnly int
	TestOnly   int
	Unpaired   int
}

// RunStatus represents the overall result
type RunStatus string

const (
	// StatusPass indicates every pair matched and no file was unmatched
	StatusPass RunStatus = "pass"
	// StatusFail indicates at least one failing result or unmatched file
	StatusFail RunStatus = "fail"
	// StatusFatal indicates the run was aborted before comparing anything
	StatusFatal RunStatus = "fatal"
	// StatusCancelled indicates the run was interrupted between pairs
	StatusCancelled RunStatus = "cancelled"
)

// ExitCode returns the process exit code for the status
func (s RunStatus) ExitCode() int {
	switch s {
	case StatusPass:
		return 0
	case StatusFail:
		return 1
	case StatusFatal:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 2
	}
}

// Verdict computes pass or fail from the entries and unmatched lists.
// Warning-level results and the files of skipped kinds do not fail the run.
func (r *Report) Verdict() RunStatus {
	if len(r.MasterOnly) > 0 || len(r.TestOnly) > 0 {
		return StatusFail
	}
	for _, e := range r.Entries {
		if e.Result.Severity() == SeverityFail {
			return StatusFail
		}
	}
	return StatusPass
}

// Stats counts entries by severity
func (r *Report) Stats() Stats {
	s := Stats{
		Pairs:      len(r.Entries),
		MasterOnly: len(r.MasterOnly),
		TestOnly:   len(r.TestOnly),
		Unpaired:   len(r.Unpaired),
	}
	for _, e := range r.Entries {
		switch e.Result.Severity() {
		case SeverityPass:
			s.Matches++
		case SeverityWarning:
			s.Warnings++
		case SeverityFail:
			s.Failures++
		}
		if e.Result.Kind == ResultUnreadable {
			s.Unreadable++
		}
	}
	return s
}
