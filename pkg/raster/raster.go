// Package raster exposes georeferenced raster datasets through the small
// Handle capability the comparator and renderer depend on. A pure Go
// GeoTIFF reader is always available; building with the gdal tag adds a
// GDAL-backed opener for every format GDAL reads.
package raster

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files no registered opener can read
var ErrUnsupported = errors.New("unsupported raster format")

// Handle is an open raster dataset. Bands are numbered from 1.
type Handle interface {
	// Path returns the location the handle was opened from
	Path() string

	// Projection returns the spatial reference as a string
	Projection() string

	// GeoTransform returns the six affine coefficients
	GeoTransform() [6]float64

	// Dimensions returns the raster size in columns and rows
	Dimensions() (cols, rows int)

	// BandCount returns the number of bands
	BandCount() int

	// NoData returns the band's NoData value, if one is defined
	NoData(band int) (float64, bool)

	// ReadBand materialises a band in row-major order
	ReadBand(band int) ([]float64, error)

	// Close releases the dataset
	Close() error
}

// SubDatasetLister is implemented by container handles (HDF, NetCDF)
// holding named sub-rasters
type SubDatasetLister interface {
	SubDatasets() []string
}

// Opener opens raster datasets
type Opener interface {
	Open(path string) (Handle, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(path string) (Handle, error)

// Open calls f(path)
func (f OpenerFunc) Open(path string) (Handle, error) {
	return f(path)
}

// ExtOpener dispatches on the lower-cased file extension and falls back
// to Fallback, if set
type ExtOpener struct {
	ByExt    map[string]Opener
	Fallback Opener
}

// Open implements Opener
func (o ExtOpener) Open(path string) (Handle, error) {
	if op, ok := o.ByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return op.Open(path)
	}
	if o.Fallback != nil {
		return o.Fallback.Open(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

// Array is one materialised band
type Array struct {
	Cols      int
	Rows      int
	Values    []float64
	NoData    float64
	HasNoData bool
}

// At returns the value at column x, row y
func (a *Array) At(x, y int) float64 {
	return a.Values[y*a.Cols+x]
}

// IsNoData reports whether v equals the band's NoData value. A NaN NoData
// matches every NaN.
func (a *Array) IsNoData(v float64) bool {
	if !a.HasNoData {
		return false
	}
	if math.IsNaN(a.NoData) {
		return math.IsNaN(v)
	}
	return v == a.NoData
}

// ReadBand reads a band together with its NoData value
func ReadBand(h Handle, band int) (*Array, error) {
	if band < 1 || band > h.BandCount() {
		return nil, fmt.Errorf("band %d out of range [1, %d] in %s", band, h.BandCount(), h.Path())
	}

	values, err := h.ReadBand(band)
	if err != nil {
		return nil, fmt.Errorf("failed to read band %d of %s: %w", band, h.Path(), err)
	}

	cols, rows := h.Dimensions()
	if len(values) != cols*rows {
		return nil, fmt.Errorf("band %d of %s has %d values, want %d", band, h.Path(), len(values), cols*rows)
	}

	nodata, ok := h.NoData(band)
	return &Array{Cols: cols, Rows: rows, Values: values, NoData: nodata, HasNoData: ok}, nil
}
