package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdejongh/scival/pkg/models"
)

// WriteReport writes the full report to a file.
// Format can be "human" or "json".
func WriteReport(report *models.Report, path string, format string) error {
	return writeFile(report, path, format)
}

// WriteDifferencesReport writes only the non-matching entries and the
// unmatched files. No file is created when there is nothing to report.
func WriteDifferencesReport(report *models.Report, path string, format string) error {
	diffs := Differences(report)
	if len(diffs.Entries) == 0 && len(diffs.MasterOnly) == 0 && len(diffs.TestOnly) == 0 {
		return nil
	}
	return writeFile(diffs, path, format)
}

// Differences returns a copy of report restricted to non-matching entries
func Differences(report *models.Report) *models.Report {
	out := *report
	out.Entries = []models.Entry{}
	for _, e := range report.Entries {
		if !e.Result.IsMatch() {
			out.Entries = append(out.Entries, e)
		}
	}
	return &out
}

func writeFile(report *models.Report, path string, format string) error {
	formatter, err := NewFormatter(format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := formatter.Format(file, report); err != nil {
		file.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return file.Close()
}
