package models

import (
	"fmt"
)

// ResultKind tags the outcome of comparing one file pair. Exactly one tag
// is produced per comparison.
type ResultKind string

const (
	ResultMatch                ResultKind = "match"
	ResultProjectionMismatch   ResultKind = "projection_mismatch"
	ResultGeoTransformMismatch ResultKind = "geotransform_mismatch"
	ResultDimensionMismatch    ResultKind = "dimension_mismatch"
	ResultPixelMismatch        ResultKind = "pixel_mismatch"
	ResultSchemaInvalid        ResultKind = "schema_invalid"
	ResultTextDiff             ResultKind = "text_diff"
	ResultNameMismatch         ResultKind = "name_mismatch"
	ResultSizeMismatch         ResultKind = "size_mismatch"
	ResultUnreadable           ResultKind = "unreadable"
)

// Severity ranks a result for the run verdict
type Severity string

const (
	SeverityPass    Severity = "pass"
	SeverityWarning Severity = "warning"
	SeverityFail    Severity = "fail"
)

// Class groups results into the error taxonomy used in diagnostics
type Class string

const (
	ClassNone       Class = "none"
	ClassUnreadable Class = "unreadable"
	ClassStructural Class = "structural_mismatch"
	ClassContent    Class = "content_mismatch"
)

// DiffRaster is the absolute per-pixel difference of one band.
// Masked positions hold zero.
type DiffRaster struct {
	Cols   int       `json:"cols"`
	Rows   int       `json:"rows"`
	Band   int       `json:"band"`
	Values []float64 `json:"-"`

	// Count is the number of unequal unmasked positions across all bands
	Count int `json:"count"`

	// MaxDiff is the largest absolute difference found
	MaxDiff float64 `json:"max_diff"`

	// Bands lists every band (1-based) holding at least one difference
	Bands []int `json:"bands,omitempty"`
}

// At returns the difference at column x, row y
func (d *DiffRaster) At(x, y int) float64 {
	return d.Values[y*d.Cols+x]
}

// DiffResult is the classified outcome of one comparison. Kind selects
// which of the payload fields are meaningful.
type DiffResult struct {
	Kind ResultKind `json:"kind"`

	// Check names the validator that produced the result (raster, text, schema, image)
	Check string `json:"check"`

	// Master and Test hold the differing structural values
	// (projection, geotransform, dimensions, file names)
	Master string `json:"master,omitempty"`
	Test   string `json:"test,omitempty"`

	// Diff is set for PixelMismatch
	Diff *DiffRaster `json:"diff,omitempty"`

	// DiffImage is the rendered difference image path, if any
	DiffImage string `json:"diff_image,omitempty"`

	// Added holds lines present in test but absent in master,
	// Removed the reverse. Both are sorted.
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`

	// MasterBytes and TestBytes are set for SizeMismatch
	MasterBytes int64 `json:"master_bytes,omitempty"`
	TestBytes   int64 `json:"test_bytes,omitempty"`

	// Reason explains Unreadable and SchemaInvalid results
	Reason string `json:"reason,omitempty"`

	// Violations lists schema violations for SchemaInvalid
	Violations []string `json:"violations,omitempty"`

	// Notes carries non-fatal diagnostics such as undetermined NoData
	Notes []string `json:"notes,omitempty"`
}

// Match returns a matching result
func Match(check string) DiffResult {
	return DiffResult{Kind: ResultMatch, Check: check}
}

// ProjectionMismatch returns a result for differing projection references
func ProjectionMismatch(master, test string) DiffResult {
	return DiffResult{Kind: ResultProjectionMismatch, Check: "raster", Master: master, Test: test}
}

// GeoTransformMismatch returns a result for differing geotransforms
func GeoTransformMismatch(master, test string) DiffResult {
	return DiffResult{Kind: ResultGeoTransformMismatch, Check: "raster", Master: master, Test: test}
}

// DimensionMismatch returns a result for differing raster or image extents
func DimensionMismatch(check, master, test string) DiffResult {
	return DiffResult{Kind: ResultDimensionMismatch, Check: check, Master: master, Test: test}
}

// PixelMismatch returns a result carrying the difference raster
func PixelMismatch(check string, diff *DiffRaster) DiffResult {
	return DiffResult{Kind: ResultPixelMismatch, Check: check, Diff: diff}
}

// SchemaInvalid returns a result for a document failing schema validation
func SchemaInvalid(reason string, violations []string) DiffResult {
	return DiffResult{Kind: ResultSchemaInvalid, Check: "schema", Reason: reason, Violations: violations}
}

// TextDiff returns a result for differing line sets
func TextDiff(added, removed []string) DiffResult {
	return DiffResult{Kind: ResultTextDiff, Check: "text", Added: added, Removed: removed}
}

// NameMismatch returns a result for a pair whose file names differ
func NameMismatch(master, test string) DiffResult {
	return DiffResult{Kind: ResultNameMismatch, Check: "text", Master: master, Test: test}
}

// SizeMismatch returns a result for files differing only in byte size
func SizeMismatch(check string, masterBytes, testBytes int64) DiffResult {
	return DiffResult{Kind: ResultSizeMismatch, Check: check, MasterBytes: masterBytes, TestBytes: testBytes}
}

// Unreadable returns a result for a file that could not be opened or parsed
func Unreadable(check string, err error) DiffResult {
	return DiffResult{Kind: ResultUnreadable, Check: check, Reason: err.Error()}
}

// IsMatch reports whether the result is a match
func (r DiffResult) IsMatch() bool {
	return r.Kind == ResultMatch
}

// Severity returns how the result weighs on the run verdict.
// A size-only difference is a warning; every other non-match fails.
func (r DiffResult) Severity() Severity {
	switch r.Kind {
	case ResultMatch:
		return SeverityPass
	case ResultSizeMismatch:
		return SeverityWarning
	default:
		return SeverityFail
	}
}

// Class returns the taxonomy class of the result
func (r DiffResult) Class() Class {
	switch r.Kind {
	case ResultMatch:
		return ClassNone
	case ResultUnreadable:
		return ClassUnreadable
	case ResultProjectionMismatch, ResultGeoTransformMismatch, ResultDimensionMismatch,
		ResultSchemaInvalid, ResultNameMismatch:
		return ClassStructural
	default:
		return ClassContent
	}
}

// WithNotes returns a copy of the result with notes appended
func (r DiffResult) WithNotes(notes ...string) DiffResult {
	if len(notes) == 0 {
		return r
	}
	r.Notes = append(append([]string(nil), r.Notes...), notes...)
	return r
}

// Summary returns a one-line description of the result
func (r DiffResult) Summary() string {
	switch r.Kind {
	case ResultMatch:
		return "match"
	case ResultProjectionMismatch:
		return "projections do not match"
	case ResultGeoTransformMismatch:
		return "geotransforms do not match"
	case ResultDimensionMismatch:
		return fmt.Sprintf("dimensions do not match: master=%s test=%s", r.Master, r.Test)
	case ResultPixelMismatch:
		if r.Diff == nil {
			return "pixel values differ"
		}
		return fmt.Sprintf("pixel values differ at %d positions (max abs diff %g)", r.Diff.Count, r.Diff.MaxDiff)
	case ResultSchemaInvalid:
		return fmt.Sprintf("document is not valid against schema: %s", r.Reason)
	case ResultTextDiff:
		return fmt.Sprintf("%d lines added, %d lines removed", len(r.Added), len(r.Removed))
	case ResultNameMismatch:
		return fmt.Sprintf("file names differ: master=%s test=%s", r.Master, r.Test)
	case ResultSizeMismatch:
		return fmt.Sprintf("file sizes differ: master=%d test=%d bytes", r.MasterBytes, r.TestBytes)
	case ResultUnreadable:
		return fmt.Sprintf("unreadable: %s", r.Reason)
	default:
		return string(r.Kind)
	}
}
