// Package rastertest writes small GeoTIFF and ENVI fixtures for tests.
package rastertest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// SampleType selects the on-disk sample encoding
type SampleType int

const (
	Float32 SampleType = iota
	Float64
	Uint8
	Uint16
	Int16
	Int32
)

// Image describes a GeoTIFF to write. Bands hold Cols*Rows values each in
// row-major order.
type Image struct {
	Cols, Rows int
	Bands      [][]float64
	Type       SampleType

	// EPSG is written as ProjectedCSTypeGeoKey; 0 writes no GeoKeys
	EPSG int

	// GeoTransform is written as tiepoint+scale when north-up, otherwise
	// as a ModelTransformation. A zero value writes no georeferencing.
	GeoTransform [6]float64

	// NoData is written to the GDAL_NODATA tag when non-empty
	NoData string

	Compress  bool
	Planar    bool
	TileSize  int // 0 writes strips
	StripRows int // rows per strip, 0 = 1
}

// Filled returns a band of n copies of v
func Filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Ramp returns a band whose i-th value is start+i
func Ramp(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

// NoDataValue formats v the way GDAL writes GDAL_NODATA
func NoDataValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

// WriteGeoTIFF encodes img as a little-endian classic TIFF at path
func WriteGeoTIFF(path string, img Image) error {
	data, err := Encode(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Encode returns the bytes of the GeoTIFF described by img
func Encode(img Image) ([]byte, error) {
	if img.Cols <= 0 || img.Rows <= 0 || len(img.Bands) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	for i, b := range img.Bands {
		if len(b) != img.Cols*img.Rows {
			return nil, fmt.Errorf("band %d has %d values, want %d", i+1, len(b), img.Cols*img.Rows)
		}
	}

	bits, format := sampleLayout(img.Type)
	spp := len(img.Bands)

	chunkW, chunkH := img.Cols, img.StripRows
	if chunkH <= 0 {
		chunkH = 1
	}
	if img.TileSize > 0 {
		chunkW, chunkH = img.TileSize, img.TileSize
	}
	across := (img.Cols + chunkW - 1) / chunkW
	down := (img.Rows + chunkH - 1) / chunkH

	planes := 1
	if img.Planar {
		planes = spp
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	var offsets, counts []uint32
	for p := 0; p < planes; p++ {
		for cy := 0; cy < down; cy++ {
			rows := chunkH
			if img.TileSize == 0 && (cy+1)*chunkH > img.Rows {
				rows = img.Rows - cy*chunkH
			}
			for cx := 0; cx < across; cx++ {
				chunk := encodeChunk(img, p, cx*chunkW, cy*chunkH, chunkW, rows)
				if img.Compress {
					var z bytes.Buffer
					zw := zlib.NewWriter(&z)
					zw.Write(chunk)
					zw.Close()
					chunk = z.Bytes()
				}
				offsets = append(offsets, uint32(buf.Len()))
				counts = append(counts, uint32(len(chunk)))
				buf.Write(chunk)
			}
		}
	}

	entries := []entry{
		longs(256, uint32(img.Cols)),
		longs(257, uint32(img.Rows)),
		shorts(258, repeat(uint16(bits), spp)...),
		shorts(259, compression(img.Compress)),
		shorts(262, 1),
		shorts(277, uint16(spp)),
		shorts(284, planarConfig(img.Planar)),
		shorts(339, repeat(uint16(format), spp)...),
	}
	if img.TileSize > 0 {
		entries = append(entries,
			longs(322, uint32(chunkW)), longs(323, uint32(chunkH)),
			longs(324, offsets...), longs(325, counts...))
	} else {
		entries = append(entries,
			longs(273, offsets...), longs(278, uint32(chunkH)), longs(279, counts...))
	}

	gt := img.GeoTransform
	switch {
	case gt == [6]float64{}:
	case gt[2] == 0 && gt[4] == 0 && gt[5] < 0:
		entries = append(entries,
			doubles(33550, gt[1], -gt[5], 0),
			doubles(33922, 0, 0, 0, gt[0], gt[3], 0))
	default:
		entries = append(entries, doubles(34264,
			gt[1], gt[2], 0, gt[0],
			gt[4], gt[5], 0, gt[3],
			0, 0, 0, 0,
			0, 0, 0, 1))
	}

	if img.EPSG != 0 {
		// version 1.1.0, 3 keys: model type projected, raster is area, EPSG code
		entries = append(entries, shorts(34735,
			1, 1, 0, 3,
			1024, 0, 1, 1,
			1025, 0, 1, 1,
			3072, 0, 1, uint16(img.EPSG)))
	}

	if img.NoData != "" {
		entries = append(entries, ascii(42113, img.NoData))
	}

	writeIFD(&buf, entries)
	return buf.Bytes(), nil
}

func writeIFD(buf *bytes.Buffer, entries []entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifdOffset := uint32(buf.Len())
	out := buf.Bytes()
	le.PutUint32(out[4:], ifdOffset)

	extra := ifdOffset + 2 + 12*uint32(len(entries)) + 4
	var tail bytes.Buffer

	binary.Write(buf, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(buf, le, e.tag)
		binary.Write(buf, le, e.typ)
		binary.Write(buf, le, e.count)
		if len(e.data) <= 4 {
			var v [4]byte
			copy(v[:], e.data)
			buf.Write(v[:])
			continue
		}
		binary.Write(buf, le, extra+uint32(tail.Len()))
		tail.Write(e.data)
		if tail.Len()%2 == 1 {
			tail.WriteByte(0)
		}
	}
	binary.Write(buf, le, uint32(0))
	buf.Write(tail.Bytes())
}

// encodeChunk writes the samples of one strip or tile. Pixels outside
// the image are zero padded.
func encodeChunk(img Image, plane, x0, y0, w, h int) []byte {
	var out bytes.Buffer
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			inside := x < img.Cols && y < img.Rows
			if img.Planar {
				writeSample(&out, img.Type, value(img, plane, x, y, inside))
				continue
			}
			for b := range img.Bands {
				writeSample(&out, img.Type, value(img, b, x, y, inside))
			}
		}
	}
	return out.Bytes()
}

func value(img Image, band, x, y int, inside bool) float64 {
	if !inside {
		return 0
	}
	return img.Bands[band][y*img.Cols+x]
}

func writeSample(out *bytes.Buffer, t SampleType, v float64) {
	switch t {
	case Float32:
		binary.Write(out, le, float32(v))
	case Float64:
		binary.Write(out, le, v)
	case Uint8:
		out.WriteByte(uint8(v))
	case Uint16:
		binary.Write(out, le, uint16(v))
	case Int16:
		binary.Write(out, le, int16(v))
	case Int32:
		binary.Write(out, le, int32(v))
	}
}

func sampleLayout(t SampleType) (bits, format int) {
	switch t {
	case Float64:
		return 64, 3
	case Uint8:
		return 8, 1
	case Uint16:
		return 16, 1
	case Int16:
		return 16, 2
	case Int32:
		return 32, 2
	default:
		return 32, 3
	}
}

func compression(deflate bool) uint16 {
	if deflate {
		return 8
	}
	return 1
}

func planarConfig(planar bool) uint16 {
	if planar {
		return 2
	}
	return 1
}

func repeat(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func shorts(tag uint16, vals ...uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(data[2*i:], v)
	}
	return entry{tag: tag, typ: 3, count: uint32(len(vals)), data: data}
}

func longs(tag uint16, vals ...uint32) entry {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(data[4*i:], v)
	}
	return entry{tag: tag, typ: 4, count: uint32(len(vals)), data: data}
}

func doubles(tag uint16, vals ...float64) entry {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: 12, count: uint32(len(vals)), data: data}
}

func ascii(tag uint16, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: 2, count: uint32(len(data)), data: data}
}
