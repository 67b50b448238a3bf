package compare

import (
	"context"
	"fmt"
	"math"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/raster"
)

// RasterComparator checks projection, geotransform and dimensions in that
// order, stopping at the first structural difference, then compares every
// band pixel by pixel. Values are compared exactly; NaN equals NaN.
type RasterComparator struct {
	// MaskNoData excludes NoData positions from the pixel comparison
	MaskNoData bool

	// Opener opens the files of a pair and the sub-datasets of container
	// files. Nil means raster.DefaultOpener.
	Opener raster.Opener
}

// NewRasterComparator creates a comparator using the default opener
func NewRasterComparator(maskNoData bool) *RasterComparator {
	return &RasterComparator{MaskNoData: maskNoData, Opener: raster.DefaultOpener()}
}

// Name returns the comparator name
func (c *RasterComparator) Name() string {
	return CheckRaster
}

func (c *RasterComparator) opener() raster.Opener {
	if c.Opener == nil {
		return raster.DefaultOpener()
	}
	return c.Opener
}

// Validate opens both rasters of the pair, compares them and closes them
// on every path
func (c *RasterComparator) Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult {
	log = log.WithFields(pairFields(pair))

	master, err := c.opener().Open(pair.MasterPath)
	if err != nil {
		log.Error(ctx, "Failed to open master raster", err, nil)
		return models.Unreadable(CheckRaster, fmt.Errorf("master %s: %w", pair.MasterPath, err))
	}
	defer closeHandle(ctx, log, master)

	test, err := c.opener().Open(pair.TestPath)
	if err != nil {
		log.Error(ctx, "Failed to open test raster", err, nil)
		return models.Unreadable(CheckRaster, fmt.Errorf("test %s: %w", pair.TestPath, err))
	}
	defer closeHandle(ctx, log, test)

	return c.Compare(ctx, log, master, test)
}

func closeHandle(ctx context.Context, log logging.Logger, h raster.Handle) {
	if err := h.Close(); err != nil {
		log.Warn(ctx, "Failed to close raster", logging.Fields{"path": h.Path(), "error": err.Error()})
	}
}

// Compare classifies the difference between two open rasters
func (c *RasterComparator) Compare(ctx context.Context, log logging.Logger, master, test raster.Handle) models.DiffResult {
	return c.compare(ctx, log, master, test, 0)
}

func (c *RasterComparator) compare(ctx context.Context, log logging.Logger, master, test raster.Handle, depth int) models.DiffResult {
	mp, tp := master.Projection(), test.Projection()
	if mp != tp {
		log.Error(ctx, "Projections do not match", nil, logging.Fields{"master_projection": mp, "test_projection": tp})
		return models.ProjectionMismatch(mp, tp)
	}
	log.Debug(ctx, "Projections match", nil)

	mgt, tgt := master.GeoTransform(), test.GeoTransform()
	if mgt != tgt {
		ms, ts := formatGeoTransform(mgt), formatGeoTransform(tgt)
		log.Error(ctx, "Geotransforms do not match", nil, logging.Fields{"master_geotransform": ms, "test_geotransform": ts})
		return models.GeoTransformMismatch(ms, ts)
	}
	log.Debug(ctx, "Geotransforms match", nil)

	mc, mr := master.Dimensions()
	tc, tr := test.Dimensions()
	mb, tb := master.BandCount(), test.BandCount()
	if mc != tc || mr != tr || mb != tb {
		ms, ts := formatDimensions(mc, mr, mb), formatDimensions(tc, tr, tb)
		log.Error(ctx, "Dimensions do not match", nil, logging.Fields{"master_dimensions": ms, "test_dimensions": ts})
		return models.DimensionMismatch(CheckRaster, ms, ts)
	}
	log.Debug(ctx, "Dimensions match", logging.Fields{"cols": mc, "rows": mr, "bands": mb})

	if depth == 0 {
		if res, ok := c.compareSubDatasets(ctx, log, master, test, depth); ok {
			return res
		}
	}

	return c.comparePixels(ctx, log, master, test)
}

// compareSubDatasets compares the sub-datasets of two containers pairwise.
// It reports false when neither handle lists any.
func (c *RasterComparator) compareSubDatasets(ctx context.Context, log logging.Logger, master, test raster.Handle, depth int) (models.DiffResult, bool) {
	ml, mok := master.(raster.SubDatasetLister)
	tl, tok := test.(raster.SubDatasetLister)
	if !mok || !tok {
		return models.DiffResult{}, false
	}
	msds, tsds := ml.SubDatasets(), tl.SubDatasets()
	if len(msds) == 0 && len(tsds) == 0 {
		return models.DiffResult{}, false
	}
	if len(msds) != len(tsds) {
		ms, ts := fmt.Sprintf("%d subdatasets", len(msds)), fmt.Sprintf("%d subdatasets", len(tsds))
		log.Error(ctx, "Subdataset counts do not match", nil, logging.Fields{"master_subdatasets": len(msds), "test_subdatasets": len(tsds)})
		return models.DimensionMismatch(CheckRaster, ms, ts), true
	}

	var notes []string
	for i := range msds {
		res := c.compareSubDataset(ctx, log, msds[i], tsds[i], depth)
		notes = append(notes, res.Notes...)
		if !res.IsMatch() {
			res.Notes = nil
			return res.WithNotes(append(notes, fmt.Sprintf("subdataset %d: %s", i+1, msds[i]))...), true
		}
	}

	res := c.comparePixels(ctx, log, master, test)
	return res.WithNotes(notes...), true
}

func (c *RasterComparator) compareSubDataset(ctx context.Context, log logging.Logger, masterName, testName string, depth int) models.DiffResult {
	log = log.WithFields(logging.Fields{"master_sds": masterName, "test_sds": testName})

	master, err := c.opener().Open(masterName)
	if err != nil {
		log.Error(ctx, "Failed to open master subdataset", err, nil)
		return models.Unreadable(CheckRaster, fmt.Errorf("master subdataset %s: %w", masterName, err))
	}
	defer closeHandle(ctx, log, master)

	test, err := c.opener().Open(testName)
	if err != nil {
		log.Error(ctx, "Failed to open test subdataset", err, nil)
		return models.Unreadable(CheckRaster, fmt.Errorf("test subdataset %s: %w", testName, err))
	}
	defer closeHandle(ctx, log, test)

	return c.compare(ctx, log, master, test, depth+1)
}

// comparePixels compares every band. The returned difference raster holds
// the first differing band; Count, MaxDiff and Bands cover all bands.
func (c *RasterComparator) comparePixels(ctx context.Context, log logging.Logger, master, test raster.Handle) models.DiffResult {
	var (
		diff  *models.DiffRaster
		notes []string
	)

	for band := 1; band <= master.BandCount(); band++ {
		ma, err := raster.ReadBand(master, band)
		if err != nil {
			log.Error(ctx, "Failed to read master band", err, logging.Fields{"band": band})
			return models.Unreadable(CheckRaster, err).WithNotes(notes...)
		}
		ta, err := raster.ReadBand(test, band)
		if err != nil {
			log.Error(ctx, "Failed to read test band", err, logging.Fields{"band": band})
			return models.Unreadable(CheckRaster, err).WithNotes(notes...)
		}

		if c.MaskNoData {
			notes = append(notes, noDataNotes(ctx, log, band, master.Path(), test.Path(), ma, ta)...)
		}

		values, count, maxDiff := DiffBand(ma, ta, c.MaskNoData)
		if count == 0 {
			log.Debug(ctx, "Band values match", logging.Fields{"band": band})
			continue
		}

		log.Error(ctx, "Band values differ", nil, logging.Fields{"band": band, "count": count, "max_diff": maxDiff})
		if diff == nil {
			diff = &models.DiffRaster{Cols: ma.Cols, Rows: ma.Rows, Band: band, Values: values}
		}
		diff.Count += count
		diff.MaxDiff = math.Max(diff.MaxDiff, maxDiff)
		diff.Bands = append(diff.Bands, band)
	}

	if diff != nil {
		return models.PixelMismatch(CheckRaster, diff).WithNotes(notes...)
	}
	log.Info(ctx, "Rasters match", nil)
	return models.Match(CheckRaster).WithNotes(notes...)
}

// noDataNotes flags bands whose NoData value could not be determined
func noDataNotes(ctx context.Context, log logging.Logger, band int, masterPath, testPath string, ma, ta *raster.Array) []string {
	var notes []string
	if !ma.HasNoData {
		notes = append(notes, fmt.Sprintf("band %d: NoData undetermined in %s", band, masterPath))
	}
	if !ta.HasNoData {
		notes = append(notes, fmt.Sprintf("band %d: NoData undetermined in %s", band, testPath))
	}
	if len(notes) > 0 {
		log.Info(ctx, "NoData value could not be determined", logging.Fields{"band": band})
	}
	return notes
}

// DiffBand returns the absolute difference of two equally sized bands,
// the number of unequal positions and the largest finite difference.
// With mask set, a position is excluded when it holds NoData in either
// band; a NoData value known on one side only applies to both. Excluded
// and equal positions hold zero. A NaN facing a number yields +Inf.
func DiffBand(master, test *raster.Array, mask bool) ([]float64, int, float64) {
	mnd, mok := master.NoData, master.HasNoData
	tnd, tok := test.NoData, test.HasNoData
	switch {
	case mok && !tok:
		tnd, tok = mnd, true
	case tok && !mok:
		mnd, mok = tnd, true
	}
	mask = mask && mok

	values := make([]float64, len(master.Values))
	count, maxDiff := 0, 0.0
	for i, mv := range master.Values {
		tv := test.Values[i]
		if mask && (sameValue(mv, mnd) || sameValue(tv, tnd)) {
			continue
		}
		if sameValue(mv, tv) {
			continue
		}

		count++
		d := math.Abs(mv - tv)
		if math.IsNaN(d) {
			values[i] = math.Inf(1)
			continue
		}
		values[i] = d
		if d > maxDiff && !math.IsInf(d, 0) {
			maxDiff = d
		}
	}
	return values, count, maxDiff
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func formatGeoTransform(gt [6]float64) string {
	return fmt.Sprintf("(%g, %g, %g, %g, %g, %g)", gt[0], gt[1], gt[2], gt[3], gt[4], gt[5])
}

func formatDimensions(cols, rows, bands int) string {
	return fmt.Sprintf("%dx%d, %d bands", cols, rows, bands)
}
