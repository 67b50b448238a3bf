package compare

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/raster"
	"github.com/sdejongh/scival/pkg/raster/rastertest"
)

var utm = [6]float64{500000, 30, 0, 4000000, 0, -30}

func rasterImage(cols, rows int, values []float64, nodata string) rastertest.Image {
	return rastertest.Image{
		Cols: cols, Rows: rows, Bands: [][]float64{values},
		EPSG: 32613, GeoTransform: utm, NoData: nodata,
	}
}

func writeRasterPair(t *testing.T, h *TestHelper, name string, master, test rastertest.Image) models.FilePair {
	t.Helper()
	require.NoError(t, rastertest.WriteGeoTIFF(h.CreateMasterFile(name, nil), master))
	require.NoError(t, rastertest.WriteGeoTIFF(h.CreateTestFile(name, nil), test))
	return h.Pair(models.KindRaster, name)
}

func TestRasterComparatorScenarios(t *testing.T) {
	h := NewTestHelper(t)
	ctx := context.Background()
	values := rastertest.Ramp(16, 1)

	t.Run("Identical", func(t *testing.T) {
		pair := writeRasterPair(t, h, "identical.tif", rasterImage(4, 4, values, "-9999"), rasterImage(4, 4, values, "-9999"))
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)
		assert.Equal(t, models.ResultMatch, res.Kind)
		assert.Empty(t, res.Notes)
	})

	t.Run("NoDataCornerMatches", func(t *testing.T) {
		master := append([]float64(nil), values...)
		master[0] = -9999
		test := append([]float64(nil), values...)
		test[0] = -9999

		pair := writeRasterPair(t, h, "corner.tif", rasterImage(4, 4, master, "-9999"), rasterImage(4, 4, test, "-9999"))
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)
		assert.Equal(t, models.ResultMatch, res.Kind)
	})

	t.Run("ExtraRowIsDimensionMismatch", func(t *testing.T) {
		pair := writeRasterPair(t, h, "rows.tif", rasterImage(4, 4, values, ""), rasterImage(4, 5, rastertest.Ramp(20, 1), ""))
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)
		require.Equal(t, models.ResultDimensionMismatch, res.Kind)
		assert.Equal(t, "4x4, 1 bands", res.Master)
		assert.Equal(t, "4x5, 1 bands", res.Test)
		assert.Nil(t, res.Diff)
	})

	t.Run("ProjectionMismatch", func(t *testing.T) {
		other := rasterImage(4, 4, values, "")
		other.EPSG = 32614
		pair := writeRasterPair(t, h, "proj.tif", rasterImage(4, 4, values, ""), other)
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)
		assert.Equal(t, models.ResultProjectionMismatch, res.Kind)
		assert.Equal(t, "EPSG:32613", res.Master)
		assert.Equal(t, "EPSG:32614", res.Test)
	})

	t.Run("GeoTransformMismatch", func(t *testing.T) {
		other := rasterImage(4, 4, values, "")
		other.GeoTransform[0] += 15
		pair := writeRasterPair(t, h, "gt.tif", rasterImage(4, 4, values, ""), other)
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)
		assert.Equal(t, models.ResultGeoTransformMismatch, res.Kind)
		assert.Equal(t, "(500000, 30, 0, 4e+06, 0, -30)", res.Master)
	})

	t.Run("PixelMismatch", func(t *testing.T) {
		test := append([]float64(nil), values...)
		test[5] += 3
		test[10] -= 1
		pair := writeRasterPair(t, h, "pixels.tif", rasterImage(4, 4, values, ""), rasterImage(4, 4, test, ""))
		res := NewRasterComparator(true).Validate(ctx, h.log, pair)

		require.Equal(t, models.ResultPixelMismatch, res.Kind)
		require.NotNil(t, res.Diff)
		assert.Equal(t, 2, res.Diff.Count)
		assert.Equal(t, 3.0, res.Diff.MaxDiff)
		assert.Equal(t, 3.0, res.Diff.At(1, 1))
		assert.Equal(t, 1.0, res.Diff.At(2, 2))
		assert.Equal(t, 0.0, res.Diff.At(0, 0))
		assert.Equal(t, []int{1}, res.Diff.Bands)
		assert.Len(t, res.Notes, 2, "NoData undetermined on both sides")
	})

	t.Run("UnreadableMaster", func(t *testing.T) {
		h.CreateMasterFile("broken.tif", []byte("not a tiff"))
		require.NoError(t, rastertest.WriteGeoTIFF(h.CreateTestFile("broken.tif", nil), rasterImage(4, 4, values, "")))
		res := NewRasterComparator(true).Validate(ctx, h.log, h.Pair(models.KindRaster, "broken.tif"))
		assert.Equal(t, models.ResultUnreadable, res.Kind)
		assert.Contains(t, res.Reason, h.MasterPath("broken.tif"))
	})
}

func TestRasterComparatorMasking(t *testing.T) {
	h := NewTestHelper(t)
	ctx := context.Background()

	master := rastertest.Ramp(16, 1)
	test := append([]float64(nil), master...)
	master[3], test[3] = -9999, -9999
	master[12] = -9999
	test[12] = 7

	pair := writeRasterPair(t, h, "masked.tif", rasterImage(4, 4, master, "-9999"), rasterImage(4, 4, test, "-9999"))

	masked := NewRasterComparator(true).Validate(ctx, h.log, pair)
	assert.Equal(t, models.ResultMatch, masked.Kind)

	unmasked := NewRasterComparator(false).Validate(ctx, h.log, pair)
	require.Equal(t, models.ResultPixelMismatch, unmasked.Kind)
	assert.Equal(t, 1, unmasked.Diff.Count)
	assert.Equal(t, 10006.0, unmasked.Diff.MaxDiff)
}

func TestRasterComparatorOneSidedNoData(t *testing.T) {
	h := NewTestHelper(t)
	ctx := context.Background()

	master := rastertest.Ramp(4, 1)
	test := append([]float64(nil), master...)
	master[0], test[0] = 0, 0
	master[1] = 0

	pair := writeRasterPair(t, h, "onesided.tif", rasterImage(2, 2, master, "0"), rasterImage(2, 2, test, ""))
	res := NewRasterComparator(true).Validate(ctx, h.log, pair)

	assert.Equal(t, models.ResultMatch, res.Kind)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "NoData undetermined in "+pair.TestPath)
}

func TestDiffBand(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name      string
		master    raster.Array
		test      raster.Array
		mask      bool
		wantCount int
		wantMax   float64
		wantDiff  []float64
	}{
		{
			name:      "Equal",
			master:    raster.Array{Values: []float64{1, 2}},
			test:      raster.Array{Values: []float64{1, 2}},
			wantDiff:  []float64{0, 0},
			wantCount: 0,
		},
		{
			name:      "NaNEqualsNaN",
			master:    raster.Array{Values: []float64{nan, 2}},
			test:      raster.Array{Values: []float64{nan, 2}},
			wantDiff:  []float64{0, 0},
			wantCount: 0,
		},
		{
			name:      "NaNAgainstNumber",
			master:    raster.Array{Values: []float64{nan, 2}},
			test:      raster.Array{Values: []float64{1, 5}},
			wantDiff:  []float64{math.Inf(1), 3},
			wantCount: 2,
			wantMax:   3,
		},
		{
			name:      "IndependentNoData",
			master:    raster.Array{Values: []float64{-1, 2, 3}, NoData: -1, HasNoData: true},
			test:      raster.Array{Values: []float64{0, 255, 3}, NoData: 255, HasNoData: true},
			mask:      true,
			wantDiff:  []float64{0, 0, 0},
			wantCount: 0,
		},
		{
			name:      "NoDataIgnoredWithoutMask",
			master:    raster.Array{Values: []float64{-1, 2}, NoData: -1, HasNoData: true},
			test:      raster.Array{Values: []float64{0, 2}, NoData: -1, HasNoData: true},
			wantDiff:  []float64{1, 0},
			wantCount: 1,
			wantMax:   1,
		},
		{
			name:      "NaNNoData",
			master:    raster.Array{Values: []float64{nan, 1}, NoData: nan, HasNoData: true},
			test:      raster.Array{Values: []float64{4, 1}},
			mask:      true,
			wantDiff:  []float64{0, 0},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, count, maxDiff := DiffBand(&tt.master, &tt.test, tt.mask)
			assert.Equal(t, tt.wantDiff, diff)
			assert.Equal(t, tt.wantCount, count)
			assert.Equal(t, tt.wantMax, maxDiff)
		})
	}
}

// fakeHandle is an in-memory raster, optionally a container
type fakeHandle struct {
	path   string
	proj   string
	cols   int
	rows   int
	bands  [][]float64
	sds    []string
	closed *int
}

func (f *fakeHandle) Path() string { return f.path }

func (f *fakeHandle) Projection() string { return f.proj }

func (f *fakeHandle) GeoTransform() [6]float64 { return [6]float64{0, 1, 0, 0, 0, 1} }

func (f *fakeHandle) Dimensions() (int, int) { return f.cols, f.rows }

func (f *fakeHandle) BandCount() int { return len(f.bands) }

func (f *fakeHandle) NoData(int) (float64, bool) { return 0, false }

func (f *fakeHandle) ReadBand(band int) ([]float64, error) { return f.bands[band-1], nil }

func (f *fakeHandle) SubDatasets() []string { return f.sds }

func (f *fakeHandle) Close() error {
	if f.closed != nil {
		*f.closed++
	}
	return nil
}

// fakeOpener serves handles by path and counts opens and closes
type fakeOpener struct {
	handles map[string]*fakeHandle
	opened  int
	closed  int
}

func (o *fakeOpener) Open(path string) (raster.Handle, error) {
	h, ok := o.handles[path]
	if !ok {
		return nil, errors.New("no such dataset")
	}
	o.opened++
	h.closed = &o.closed
	return h, nil
}

func TestRasterComparatorSubDatasets(t *testing.T) {
	ctx := context.Background()
	log := logging.NewNullLogger()

	newOpener := func(testRefl []float64) *fakeOpener {
		return &fakeOpener{handles: map[string]*fakeHandle{
			"m.hdf": {path: "m.hdf", sds: []string{`HDF4_EOS:EOS_GRID:"m.hdf":Grid:sr_band1`, `HDF4_EOS:EOS_GRID:"m.hdf":Grid:sr_band2`}},
			"t.hdf": {path: "t.hdf", sds: []string{`HDF4_EOS:EOS_GRID:"t.hdf":Grid:sr_band1`, `HDF4_EOS:EOS_GRID:"t.hdf":Grid:sr_band2`}},

			`HDF4_EOS:EOS_GRID:"m.hdf":Grid:sr_band1`: {cols: 2, rows: 1, bands: [][]float64{{1, 2}}},
			`HDF4_EOS:EOS_GRID:"t.hdf":Grid:sr_band1`: {cols: 2, rows: 1, bands: [][]float64{{1, 2}}},
			`HDF4_EOS:EOS_GRID:"m.hdf":Grid:sr_band2`: {cols: 2, rows: 1, bands: [][]float64{{3, 4}}},
			`HDF4_EOS:EOS_GRID:"t.hdf":Grid:sr_band2`: {cols: 2, rows: 1, bands: [][]float64{testRefl}},
		}}
	}
	pair := models.FilePair{Kind: models.KindRaster, Key: "x.hdf", MasterPath: "m.hdf", TestPath: "t.hdf"}

	t.Run("Match", func(t *testing.T) {
		opener := newOpener([]float64{3, 4})
		c := &RasterComparator{MaskNoData: true, Opener: opener}

		res := c.Validate(ctx, log, pair)
		assert.Equal(t, models.ResultMatch, res.Kind)
		assert.Equal(t, 6, opener.opened)
		assert.Equal(t, opener.opened, opener.closed)
	})

	t.Run("SecondSubDatasetDiffers", func(t *testing.T) {
		opener := newOpener([]float64{3, 9})
		c := &RasterComparator{MaskNoData: false, Opener: opener}

		res := c.Validate(ctx, log, pair)
		require.Equal(t, models.ResultPixelMismatch, res.Kind)
		assert.Equal(t, 5.0, res.Diff.MaxDiff)
		assert.Contains(t, res.Notes, `subdataset 2: HDF4_EOS:EOS_GRID:"m.hdf":Grid:sr_band2`)
		assert.Equal(t, opener.opened, opener.closed)
	})

	t.Run("CountMismatch", func(t *testing.T) {
		opener := newOpener([]float64{3, 4})
		opener.handles["t.hdf"].sds = opener.handles["t.hdf"].sds[:1]
		c := &RasterComparator{Opener: opener}

		res := c.Validate(ctx, log, pair)
		assert.Equal(t, models.ResultDimensionMismatch, res.Kind)
		assert.Equal(t, "2 subdatasets", res.Master)
	})

	t.Run("TestOpenFailureClosesMaster", func(t *testing.T) {
		opener := newOpener([]float64{3, 4})
		delete(opener.handles, "t.hdf")
		c := &RasterComparator{Opener: opener}

		res := c.Validate(ctx, log, pair)
		assert.Equal(t, models.ResultUnreadable, res.Kind)
		assert.Equal(t, 1, opener.opened)
		assert.Equal(t, 1, opener.closed)
	})
}
