//go:build gdal

package raster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// Driver names the raster backend compiled in
const Driver = "GDAL"

// DefaultOpener reads every format GDAL supports
func DefaultOpener() Opener {
	return GDALOpener{}
}

// GDALOpener opens datasets through GDAL
type GDALOpener struct{}

// Open implements Opener
func (GDALOpener) Open(path string) (Handle, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", path, err)
	}
	return newGDALHandle(path, ds), nil
}

// GDALHandle is a Handle over a GDAL dataset
type GDALHandle struct {
	path         string
	ds           *godal.Dataset
	bands        []godal.Band
	cols, rows   int
	geoTransform [6]float64
	subDatasets  []string
}

func newGDALHandle(path string, ds *godal.Dataset) *GDALHandle {
	st := ds.Structure()
	h := &GDALHandle{
		path:  path,
		ds:    ds,
		bands: ds.Bands(),
		cols:  st.SizeX,
		rows:  st.SizeY,
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		gt = [6]float64{0, 1, 0, 0, 0, 1}
	}
	h.geoTransform = gt
	h.subDatasets = subDatasetNames(ds.Metadatas(godal.Domain("SUBDATASETS")))
	return h
}

// subDatasetNames orders SUBDATASET_<n>_NAME entries by n
func subDatasetNames(md map[string]string) []string {
	type sds struct {
		n    int
		name string
	}
	var list []sds
	for k, v := range md {
		if !strings.HasPrefix(k, "SUBDATASET_") || !strings.HasSuffix(k, "_NAME") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(k, "SUBDATASET_"), "_NAME"))
		if err != nil {
			continue
		}
		list = append(list, sds{n, v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].n < list[j].n })

	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.name
	}
	return names
}

// Path returns the dataset name
func (h *GDALHandle) Path() string { return h.path }

// Projection returns the WKT spatial reference
func (h *GDALHandle) Projection() string { return h.ds.Projection() }

// GeoTransform returns the affine coefficients
func (h *GDALHandle) GeoTransform() [6]float64 { return h.geoTransform }

// Dimensions returns columns and rows
func (h *GDALHandle) Dimensions() (int, int) { return h.cols, h.rows }

// BandCount returns the number of bands
func (h *GDALHandle) BandCount() int { return len(h.bands) }

// SubDatasets returns the container's sub-dataset names
func (h *GDALHandle) SubDatasets() []string { return h.subDatasets }

// NoData returns the band's NoData value
func (h *GDALHandle) NoData(band int) (float64, bool) {
	if band < 1 || band > len(h.bands) {
		return 0, false
	}
	return h.bands[band-1].NoData()
}

// ReadBand reads the whole band as float64
func (h *GDALHandle) ReadBand(band int) ([]float64, error) {
	if band < 1 || band > len(h.bands) {
		return nil, fmt.Errorf("band %d out of range [1, %d]", band, len(h.bands))
	}
	buf := make([]float64, h.cols*h.rows)
	if err := h.bands[band-1].Read(0, 0, buf, h.cols, h.rows); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the dataset
func (h *GDALHandle) Close() error {
	if h.ds == nil {
		return nil
	}
	err := h.ds.Close()
	h.ds = nil
	return err
}
