package output

import (
	"fmt"
	"io"

	"github.com/sdejongh/scival/pkg/models"
)

// Formatter defines the interface for report rendering.
// Implementations include human-readable and JSON formatters.
type Formatter interface {
	// Format writes the whole report to w
	Format(w io.Writer, report *models.Report) error

	// Name returns the formatter name
	Name() string
}

// NewFormatter returns the formatter registered under name
func NewFormatter(name string) (Formatter, error) {
	switch name {
	case "human", "":
		return NewHumanFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want human or json)", name)
	}
}

// kindOrder is the display order of result groups, failures first
var kindOrder = []models.ResultKind{
	models.ResultUnreadable,
	models.ResultProjectionMismatch,
	models.ResultGeoTransformMismatch,
	models.ResultDimensionMismatch,
	models.ResultSchemaInvalid,
	models.ResultNameMismatch,
	models.ResultPixelMismatch,
	models.ResultTextDiff,
	models.ResultSizeMismatch,
	models.ResultMatch,
}

var kindLabels = map[models.ResultKind]string{
	models.ResultUnreadable:           "Unreadable",
	models.ResultProjectionMismatch:   "Projection Mismatches",
	models.ResultGeoTransformMismatch: "Geotransform Mismatches",
	models.ResultDimensionMismatch:    "Dimension Mismatches",
	models.ResultSchemaInvalid:        "Schema Violations",
	models.ResultNameMismatch:         "Name Mismatches",
	models.ResultPixelMismatch:        "Pixel Mismatches",
	models.ResultTextDiff:             "Text Differences",
	models.ResultSizeMismatch:         "Size Differences",
	models.ResultMatch:                "Matches",
}

// groupByKind splits entries by result kind, keeping report order within a group
func groupByKind(entries []models.Entry) map[models.ResultKind][]models.Entry {
	groups := make(map[models.ResultKind][]models.Entry)
	for _, e := range entries {
		groups[e.Result.Kind] = append(groups[e.Result.Kind], e)
	}
	return groups
}
