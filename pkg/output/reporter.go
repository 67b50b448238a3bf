package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
)

// Reporter accumulates the outcome of one run. Entries are appended in the
// order they are added; the final report is built by Finish.
type Reporter struct {
	mu     sync.Mutex
	log    logging.Logger
	report *models.Report
}

// NewReporter creates a reporter for run
func NewReporter(log logging.Logger, run *models.Run) *Reporter {
	return &Reporter{
		log: log,
		report: &models.Report{
			RunID:      run.ID,
			StartTime:  time.Now(),
			MasterRoot: run.MasterRoot,
			TestRoot:   run.TestRoot,
			MaskNoData: run.MaskNoData,
			Entries:    []models.Entry{},
			MasterOnly: []models.UnmatchedFile{},
			TestOnly:   []models.UnmatchedFile{},
		},
	}
}

// Add records the result of one pair
func (r *Reporter) Add(ctx context.Context, pair models.FilePair, result models.DiffResult) {
	r.mu.Lock()
	r.report.Entries = append(r.report.Entries, models.Entry{Pair: pair, Result: result})
	r.mu.Unlock()

	fields := logging.Fields{
		"kind":   string(pair.Kind),
		"master": pair.MasterPath,
		"test":   pair.TestPath,
		"result": string(result.Kind),
	}
	if len(result.Notes) > 0 {
		fields["notes"] = result.Notes
	}

	switch {
	case result.Kind == models.ResultUnreadable:
		r.log.Error(ctx, "Pair could not be compared", errors.New(result.Reason), fields)
	case result.Severity() == models.SeverityPass:
		r.log.Info(ctx, "Pair matches", fields)
	default:
		fields["summary"] = result.Summary()
		r.log.Warn(ctx, "Pair differs", fields)
	}
}

// AddUnmatched records files that have no counterpart in the other tree
func (r *Reporter) AddUnmatched(ctx context.Context, files ...models.UnmatchedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range files {
		switch f.Side {
		case models.LocationMaster:
			r.report.MasterOnly = append(r.report.MasterOnly, f)
		default:
			r.report.TestOnly = append(r.report.TestOnly, f)
		}
		r.log.Warn(ctx, "File has no counterpart", logging.Fields{
			"kind": string(f.Kind),
			"path": f.Path,
			"only": string(f.Side),
		})
	}
}

// Skip records a kind that was not compared together with the files of
// that kind found in only one tree
func (r *Reporter) Skip(ctx context.Context, kind models.Kind, reason string, files ...models.UnmatchedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Skipped = append(r.report.Skipped, kind)
	r.report.Warnings = append(r.report.Warnings, string(kind)+": "+reason)
	r.report.Unpaired = append(r.report.Unpaired, files...)
	r.log.Warn(ctx, "Kind skipped", logging.Fields{"kind": string(kind), "reason": reason, "files": len(files)})
}

// Warn records a run-level diagnostic
func (r *Reporter) Warn(ctx context.Context, msg string) {
	r.mu.Lock()
	r.report.Warnings = append(r.report.Warnings, msg)
	r.mu.Unlock()

	r.log.Warn(ctx, msg, nil)
}

// Finish stamps timing and the verdict and returns the report.
// A cancelled run keeps its partial entries.
func (r *Reporter) Finish(ctx context.Context, cancelled bool) *models.Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := r.report
	rep.EndTime = time.Now()
	rep.Duration = rep.EndTime.Sub(rep.StartTime)
	if cancelled {
		rep.Status = models.StatusCancelled
	} else {
		rep.Status = rep.Verdict()
	}

	stats := rep.Stats()
	r.log.Info(ctx, "Run finished", logging.Fields{
		"run_id":      rep.RunID,
		"status":      string(rep.Status),
		"pairs":       stats.Pairs,
		"failures":    stats.Failures,
		"warnings":    stats.Warnings,
		"master_only": stats.MasterOnly,
		"test_only":   stats.TestOnly,
		"unpaired":    stats.Unpaired,
		"duration_ms": rep.Duration.Milliseconds(),
	})
	return rep
}
