package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// TIFF and GeoTIFF tags read by the GeoTIFF reader
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoAsciiParams      = 34737
	tagGDALNoData          = 42113
)

// TIFF field types
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

// Compression, predictor and sample format codes
const (
	compressionNone       = 1
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// GeoKeys with special meaning
const (
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072

	rasterPixelIsPoint = "2"
	userDefinedKey     = "32767"
)

// Limits applied before anything is allocated from header values
const (
	maxTagBytes   = 1 << 28 // single tag value
	maxBandPixels = 1 << 28 // pixels of one band
	maxChunkBytes = 1 << 30 // decoded strip or tile
)

// maxDeflateRatio is the best ratio deflate reaches; compressed chunks
// smaller than the decoded size over this ratio cannot hold the image
const maxDeflateRatio = 1032

var errNotTIFF = errors.New("not a TIFF file")

// GeoTIFF is a Handle over a classic (non-Big) TIFF file. Strip and tile
// layouts, chunky and planar samples, and uncompressed or deflated data
// are supported.
type GeoTIFF struct {
	path   string
	r      io.ReaderAt
	size   int64
	closer io.Closer
	order  binary.ByteOrder

	width, height int
	spp           int
	bits          int
	format        int
	compression   int
	predictor     int
	planar        bool
	tiled         bool
	chunkW        int
	chunkH        int
	offsets       []uint64
	counts        []uint64
	sample        func(buf []byte, i int) float64

	projection   string
	geoTransform [6]float64
	nodata       float64
	hasNoData    bool
}

// GeoTIFFOpener opens files with OpenGeoTIFF
var GeoTIFFOpener Opener = OpenerFunc(func(path string) (Handle, error) {
	g, err := OpenGeoTIFF(path)
	if err != nil {
		return nil, err
	}
	return g, nil
})

// OpenGeoTIFF opens and parses the first image of a GeoTIFF file
func OpenGeoTIFF(path string) (*GeoTIFF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat raster: %w", err)
	}

	g, err := parseGeoTIFF(path, f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	g.closer = f
	return g, nil
}

// Path returns the file path
func (g *GeoTIFF) Path() string { return g.path }

// Projection returns "EPSG:<code>" when the GeoKeys name a registered
// coordinate system, otherwise a canonical dump of the GeoKeys
func (g *GeoTIFF) Projection() string { return g.projection }

// GeoTransform returns the affine coefficients
func (g *GeoTIFF) GeoTransform() [6]float64 { return g.geoTransform }

// Dimensions returns columns and rows
func (g *GeoTIFF) Dimensions() (int, int) { return g.width, g.height }

// BandCount returns the number of samples per pixel
func (g *GeoTIFF) BandCount() int { return g.spp }

// NoData returns the GDAL_NODATA value shared by all bands
func (g *GeoTIFF) NoData(band int) (float64, bool) { return g.nodata, g.hasNoData }

// Close closes the file
func (g *GeoTIFF) Close() error {
	if g.closer == nil {
		return nil
	}
	err := g.closer.Close()
	g.closer = nil
	return err
}

// ReadBand decodes every chunk holding the band
func (g *GeoTIFF) ReadBand(band int) ([]float64, error) {
	if band < 1 || band > g.spp {
		return nil, fmt.Errorf("band %d out of range [1, %d]", band, g.spp)
	}

	across := ceilDiv(g.width, g.chunkW)
	down := ceilDiv(g.height, g.chunkH)

	plane, stride, offset := 0, g.spp, band-1
	if g.planar {
		plane, stride, offset = band-1, 1, 0
	}

	out := make([]float64, g.width*g.height)
	for cy := 0; cy < down; cy++ {
		rows := g.chunkH
		if !g.tiled && (cy+1)*g.chunkH > g.height {
			rows = g.height - cy*g.chunkH
		}

		for cx := 0; cx < across; cx++ {
			idx := plane*across*down + cy*across + cx
			data, err := g.readChunk(idx, rows, stride)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", idx, err)
			}

			for r := 0; r < rows; r++ {
				y := cy*g.chunkH + r
				if y >= g.height {
					break
				}
				for c := 0; c < g.chunkW; c++ {
					x := cx*g.chunkW + c
					if x >= g.width {
						break
					}
					out[y*g.width+x] = g.sample(data, (r*g.chunkW+c)*stride+offset)
				}
			}
		}
	}
	return out, nil
}

// readChunk returns the decompressed bytes of one strip or tile.
// stride is the number of samples per pixel stored in the chunk.
func (g *GeoTIFF) readChunk(idx, rows, stride int) ([]byte, error) {
	raw := make([]byte, g.counts[idx])
	if err := readFull(g.r, raw, int64(g.offsets[idx])); err != nil {
		return nil, err
	}

	data := raw
	if g.compression != compressionNone {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		data, err = io.ReadAll(io.LimitReader(zr, int64(g.chunkBytes())))
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
	}

	bytesPerSample := g.bits / 8
	rowBytes := g.chunkW * stride * bytesPerSample
	if len(data) < rows*rowBytes {
		return nil, fmt.Errorf("short chunk: %d bytes, want %d", len(data), rows*rowBytes)
	}

	if g.predictor == predictorHorizontal {
		for r := 0; r < rows; r++ {
			undoHorizontalPredictor(data[r*rowBytes:(r+1)*rowBytes], g.order, bytesPerSample, stride)
		}
	}
	return data, nil
}

// undoHorizontalPredictor accumulates the per-sample differences of one row
func undoHorizontalPredictor(row []byte, order binary.ByteOrder, size, stride int) {
	n := len(row) / size
	for i := stride; i < n; i++ {
		switch size {
		case 1:
			row[i] += row[i-stride]
		case 2:
			v := order.Uint16(row[2*i:]) + order.Uint16(row[2*(i-stride):])
			order.PutUint16(row[2*i:], v)
		case 4:
			v := order.Uint32(row[4*i:]) + order.Uint32(row[4*(i-stride):])
			order.PutUint32(row[4*i:], v)
		case 8:
			v := order.Uint64(row[8*i:]) + order.Uint64(row[8*(i-stride):])
			order.PutUint64(row[8*i:], v)
		}
	}
}

func parseGeoTIFF(path string, r io.ReaderAt, size int64) (*GeoTIFF, error) {
	var hdr [8]byte
	if err := readFull(r, hdr[:], 0); err != nil {
		return nil, errNotTIFF
	}

	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errNotTIFF
	}

	switch order.Uint16(hdr[2:]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, errNotTIFF
	}

	tags, err := readIFD(r, size, order, int64(order.Uint32(hdr[4:])))
	if err != nil {
		return nil, err
	}

	g := &GeoTIFF{path: path, r: r, size: size, order: order}
	if err := g.parseLayout(tags); err != nil {
		return nil, err
	}
	g.parseGeoreferencing(tags)

	if nd, ok := tags[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(nd.ascii()), 64); err == nil {
			g.nodata, g.hasNoData = v, true
		}
	}
	return g, nil
}

func (g *GeoTIFF) parseLayout(tags ifd) error {
	width, err := tags.required(tagImageWidth)
	if err != nil {
		return err
	}
	height, err := tags.required(tagImageLength)
	if err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("empty image %dx%d", width, height)
	}
	if width*height > maxBandPixels {
		return fmt.Errorf("%w: image %dx%d exceeds %d pixels per band", ErrUnsupported, width, height, maxBandPixels)
	}
	g.width, g.height = int(width), int(height)
	g.spp = int(tags.scalar(tagSamplesPerPixel, 1))
	if g.spp == 0 {
		return errors.New("zero samples per pixel")
	}

	bits := tags.uints(tagBitsPerSample)
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return fmt.Errorf("%w: mixed bits per sample %v", ErrUnsupported, bits)
		}
	}
	g.bits = int(bits[0])
	g.format = int(tags.scalar(tagSampleFormat, sampleFormatUint))

	sample, err := sampleDecoder(g.order, g.format, g.bits)
	if err != nil {
		return err
	}
	g.sample = sample

	g.compression = int(tags.scalar(tagCompression, compressionNone))
	switch g.compression {
	case compressionNone, compressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, g.compression)
	}

	g.predictor = int(tags.scalar(tagPredictor, predictorNone))
	switch {
	case g.predictor == predictorNone:
	case g.predictor == predictorHorizontal && g.format != sampleFormatFloat:
	default:
		return fmt.Errorf("%w: predictor %d for sample format %d", ErrUnsupported, g.predictor, g.format)
	}

	g.planar = tags.scalar(tagPlanarConfig, 1) == 2

	if _, ok := tags[tagTileWidth]; ok {
		g.tiled = true
		g.chunkW = int(tags.scalar(tagTileWidth, 0))
		g.chunkH = int(tags.scalar(tagTileLength, 0))
		g.offsets = tags.uints(tagTileOffsets)
		g.counts = tags.uints(tagTileByteCounts)
	} else {
		g.chunkW = g.width
		g.chunkH = int(tags.scalar(tagRowsPerStrip, uint64(g.height)))
		if g.chunkH > g.height {
			g.chunkH = g.height
		}
		g.offsets = tags.uints(tagStripOffsets)
		g.counts = tags.uints(tagStripByteCounts)
	}
	if g.chunkW <= 0 || g.chunkH <= 0 {
		return fmt.Errorf("invalid chunk size %dx%d", g.chunkW, g.chunkH)
	}
	if g.chunkBytes() > maxChunkBytes {
		return fmt.Errorf("%w: chunk %dx%d of %d bytes", ErrUnsupported, g.chunkW, g.chunkH, g.chunkBytes())
	}

	chunks := ceilDiv(g.width, g.chunkW) * ceilDiv(g.height, g.chunkH)
	if g.planar {
		chunks *= g.spp
	}
	if len(g.offsets) < chunks || len(g.counts) < chunks {
		return fmt.Errorf("expected %d chunks, found %d offsets and %d byte counts", chunks, len(g.offsets), len(g.counts))
	}
	return g.checkChunks(chunks)
}

// chunkBytes is the decoded size of one strip or tile
func (g *GeoTIFF) chunkBytes() uint64 {
	stride := uint64(g.spp)
	if g.planar {
		stride = 1
	}
	return uint64(g.chunkW) * uint64(g.chunkH) * stride * uint64(g.bits/8)
}

// checkChunks rejects chunks lying past the end of the file and images
// whose chunks cannot hold the declared pixels
func (g *GeoTIFF) checkChunks(chunks int) error {
	var stored uint64
	for i := 0; i < chunks; i++ {
		if g.offsets[i]+g.counts[i] > uint64(g.size) {
			return fmt.Errorf("chunk %d at offset %d with %d bytes runs past the end of the file (%d bytes)",
				i, g.offsets[i], g.counts[i], g.size)
		}
		stored += g.counts[i]
	}

	needed := uint64(g.width) * uint64(g.height) * uint64(g.spp) * uint64(g.bits/8)
	if g.compression == compressionNone && stored < needed {
		return fmt.Errorf("chunks hold %d bytes, image needs %d", stored, needed)
	}
	if g.compression != compressionNone && stored*maxDeflateRatio < needed {
		return fmt.Errorf("compressed chunks hold %d bytes, too few for %d decoded bytes", stored, needed)
	}
	return nil
}

func (g *GeoTIFF) parseGeoreferencing(tags ifd) {
	keys := parseGeoKeys(tags.uints(tagGeoKeyDirectory), tags.floats(tagGeoDoubleParams), tags[tagGeoAsciiParams].ascii())
	g.projection = projectionString(keys)

	gt := [6]float64{0, 1, 0, 0, 0, 1}
	georeferenced := false
	if m := tags.floats(tagModelTransformation); len(m) >= 16 {
		gt = [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
		georeferenced = true
	} else if tie, scale := tags.floats(tagModelTiepoint), tags.floats(tagModelPixelScale); len(tie) >= 6 && len(scale) >= 2 {
		gt = [6]float64{tie[3] - tie[0]*scale[0], scale[0], 0, tie[4] + tie[1]*scale[1], 0, -scale[1]}
		georeferenced = true
	}

	// GDAL reports pixel-is-point rasters with the origin on the pixel corner
	if georeferenced && keys[geoKeyRasterType] == rasterPixelIsPoint {
		gt[0] -= 0.5*gt[1] + 0.5*gt[2]
		gt[3] -= 0.5*gt[4] + 0.5*gt[5]
	}
	g.geoTransform = gt
}

// parseGeoKeys resolves the GeoKey directory into key -> value strings
func parseGeoKeys(dir []uint64, doubles []float64, ascii string) map[int]string {
	keys := make(map[int]string)
	if len(dir) < 4 {
		return keys
	}

	n := int(dir[3])
	for i := 0; i < n; i++ {
		base := 4 + 4*i
		if base+3 >= len(dir) {
			break
		}
		id, loc, count, off := int(dir[base]), dir[base+1], int(dir[base+2]), int(dir[base+3])

		switch loc {
		case 0:
			keys[id] = strconv.Itoa(off)
		case tagGeoDoubleParams:
			if off+count <= len(doubles) {
				parts := make([]string, count)
				for j, v := range doubles[off : off+count] {
					parts[j] = strconv.FormatFloat(v, 'f', -1, 64)
				}
				keys[id] = strings.Join(parts, ",")
			}
		case tagGeoAsciiParams:
			if off+count <= len(ascii) {
				keys[id] = strings.TrimRight(ascii[off:off+count], "|\x00")
			}
		}
	}
	return keys
}

// projectionString names the coordinate system by EPSG code when one is
// registered, otherwise dumps the keys sorted by id
func projectionString(keys map[int]string) string {
	for _, id := range []int{geoKeyProjectedType, geoKeyGeographicType} {
		if v, ok := keys[id]; ok && v != userDefinedKey && v != "0" {
			return "EPSG:" + v
		}
	}
	if len(keys) == 0 {
		return ""
	}

	ids := make([]int, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id) + "=" + keys[id]
	}
	return strings.Join(parts, ";")
}

func sampleDecoder(order binary.ByteOrder, format, bits int) (func([]byte, int) float64, error) {
	switch {
	case format == sampleFormatUint && bits == 8:
		return func(b []byte, i int) float64 { return float64(b[i]) }, nil
	case format == sampleFormatInt && bits == 8:
		return func(b []byte, i int) float64 { return float64(int8(b[i])) }, nil
	case format == sampleFormatUint && bits == 16:
		return func(b []byte, i int) float64 { return float64(order.Uint16(b[2*i:])) }, nil
	case format == sampleFormatInt && bits == 16:
		return func(b []byte, i int) float64 { return float64(int16(order.Uint16(b[2*i:]))) }, nil
	case format == sampleFormatUint && bits == 32:
		return func(b []byte, i int) float64 { return float64(order.Uint32(b[4*i:])) }, nil
	case format == sampleFormatInt && bits == 32:
		return func(b []byte, i int) float64 { return float64(int32(order.Uint32(b[4*i:]))) }, nil
	case format == sampleFormatUint && bits == 64:
		return func(b []byte, i int) float64 { return float64(order.Uint64(b[8*i:])) }, nil
	case format == sampleFormatInt && bits == 64:
		return func(b []byte, i int) float64 { return float64(int64(order.Uint64(b[8*i:]))) }, nil
	case format == sampleFormatFloat && bits == 32:
		return func(b []byte, i int) float64 { return float64(math.Float32frombits(order.Uint32(b[4*i:]))) }, nil
	case format == sampleFormatFloat && bits == 64:
		return func(b []byte, i int) float64 { return math.Float64frombits(order.Uint64(b[8*i:])) }, nil
	}
	return nil, fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupported, format, bits)
}

// ifdEntry is one directory entry with its value bytes loaded
type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
	order binary.ByteOrder
}

// ifd maps tag numbers to entries
type ifd map[uint16]ifdEntry

func readIFD(r io.ReaderAt, size int64, order binary.ByteOrder, off int64) (ifd, error) {
	var cnt [2]byte
	if err := readFull(r, cnt[:], off); err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	n := int(order.Uint16(cnt[:]))
	buf := make([]byte, 12*n)
	if err := readFull(r, buf, off+2); err != nil {
		return nil, fmt.Errorf("reading directory entries: %w", err)
	}

	tags := make(ifd, n)
	for i := 0; i < n; i++ {
		e := buf[12*i : 12*i+12]
		tag, typ, count := order.Uint16(e), order.Uint16(e[2:]), order.Uint32(e[4:])

		width := typeSize(typ)
		if width == 0 {
			continue
		}
		total := int64(width) * int64(count)
		if total > maxTagBytes {
			return nil, fmt.Errorf("tag %d too large (%d bytes)", tag, total)
		}
		if total > 4 && int64(order.Uint32(e[8:]))+total > size {
			return nil, fmt.Errorf("tag %d runs past the end of the file", tag)
		}

		var raw []byte
		if total <= 4 {
			raw = append([]byte(nil), e[8:8+total]...)
		} else {
			raw = make([]byte, total)
			if err := readFull(r, raw, int64(order.Uint32(e[8:]))); err != nil {
				return nil, fmt.Errorf("reading tag %d: %w", tag, err)
			}
		}
		tags[tag] = ifdEntry{typ: typ, count: count, raw: raw, order: order}
	}
	return tags, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble:
		return 8
	}
	return 0
}

// uints returns the integer values of an entry
func (e ifdEntry) uints() []uint64 {
	out := make([]uint64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(e.raw[i]))
		case typeShort:
			out = append(out, uint64(e.order.Uint16(e.raw[2*i:])))
		case typeLong:
			out = append(out, uint64(e.order.Uint32(e.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

// floats returns the numeric values of an entry as float64
func (e ifdEntry) floats() []float64 {
	out := make([]float64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case typeDouble:
			out = append(out, math.Float64frombits(e.order.Uint64(e.raw[8*i:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(e.order.Uint32(e.raw[4*i:]))))
		case typeShort:
			out = append(out, float64(e.order.Uint16(e.raw[2*i:])))
		case typeLong:
			out = append(out, float64(e.order.Uint32(e.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

// ascii returns the entry as a string without trailing NULs
func (e ifdEntry) ascii() string {
	if e.typ != typeASCII {
		return ""
	}
	return strings.TrimRight(string(e.raw), "\x00")
}

func (t ifd) uints(tag uint16) []uint64 {
	e, ok := t[tag]
	if !ok {
		return nil
	}
	return e.uints()
}

func (t ifd) floats(tag uint16) []float64 {
	e, ok := t[tag]
	if !ok {
		return nil
	}
	return e.floats()
}

func (t ifd) scalar(tag uint16, def uint64) uint64 {
	if v := t.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (t ifd) required(tag uint16) (uint64, error) {
	v := t.uints(tag)
	if len(v) == 0 {
		return 0, fmt.Errorf("missing required tag %d", tag)
	}
	return v[0], nil
}

func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
