// Package compare holds the per-kind validators. Each validator turns one
// master/test file pair into exactly one classified models.DiffResult;
// per-pair failures are results, never Go errors.
package compare

import (
	"context"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
)

// Check names reported in DiffResult.Check
const (
	CheckRaster = "raster"
	CheckText   = "text"
	CheckSchema = "schema"
	CheckImage  = "image"
)

// Validator compares the two files of a pair
type Validator interface {
	// Validate compares pair.MasterPath with pair.TestPath
	Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult

	// Name returns the name of the validation method
	Name() string
}

// pairFields returns the log fields identifying a pair
func pairFields(pair models.FilePair) logging.Fields {
	return logging.Fields{
		"kind":   string(pair.Kind),
		"master": pair.MasterPath,
		"test":   pair.TestPath,
	}
}
