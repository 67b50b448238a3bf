package output

import (
	"encoding/json"
	"io"

	"github.com/sdejongh/scival/pkg/models"
)

// JSONFormatter formats the report as JSON for automation and scripting
type JSONFormatter struct {
	// ShowTiming adds run_id and duration_ms to the document
	ShowTiming bool
}

// JSONReportData is the serialized report: the report itself plus its
// statistics and, on request, timing
type JSONReportData struct {
	*models.Report
	Stats      JSONStatsData `json:"stats"`
	RunID      string        `json:"run_id,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
}

// JSONStatsData represents statistics in JSON format
type JSONStatsData struct {
	Pairs      int `json:"pairs"`
	Matches    int `json:"matches"`
	Warnings   int `json:"warnings"`
	Failures   int `json:"failures"`
	Unreadable int `json:"unreadable"`
	MasterOnly int `json:"master_only"`
	TestOnly   int `json:"test_only"`
	Unpaired   int `json:"unpaired"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes report to w as indented JSON
func (f *JSONFormatter) Format(w io.Writer, report *models.Report) error {
	s := report.Stats()
	data := JSONReportData{
		Report: report,
		Stats: JSONStatsData{
			Pairs:      s.Pairs,
			Matches:    s.Matches,
			Warnings:   s.Warnings,
			Failures:   s.Failures,
			Unreadable: s.Unreadable,
			MasterOnly: s.MasterOnly,
			TestOnly:   s.TestOnly,
			Unpaired:   s.Unpaired,
		},
	}
	if f.ShowTiming {
		data.RunID = report.RunID
		data.DurationMs = report.Duration.Milliseconds()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}
