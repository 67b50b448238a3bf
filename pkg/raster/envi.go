package raster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ENVI data type codes mapped to TIFF sample format and bit depth
var enviTypes = map[int][2]int{
	1:  {sampleFormatUint, 8},
	2:  {sampleFormatInt, 16},
	3:  {sampleFormatInt, 32},
	4:  {sampleFormatFloat, 32},
	5:  {sampleFormatFloat, 64},
	12: {sampleFormatUint, 16},
	13: {sampleFormatUint, 32},
	14: {sampleFormatInt, 64},
	15: {sampleFormatUint, 64},
}

var errNoHeader = errors.New("no ENVI header next to raster")

// ENVI is a Handle over a raw ENVI image and its .hdr sidecar. BSQ, BIL
// and BIP interleaves in either byte order are supported.
type ENVI struct {
	path   string
	f      *os.File
	offset int64

	cols, rows, bands int
	interleave        string
	bytesPerSample    int
	sample            func(buf []byte, i int) float64

	projection   string
	geoTransform [6]float64
	nodata       float64
	hasNoData    bool
}

// ENVIOpener opens files with OpenENVI
var ENVIOpener Opener = OpenerFunc(func(path string) (Handle, error) {
	e, err := OpenENVI(path)
	if err != nil {
		return nil, err
	}
	return e, nil
})

// OpenENVI opens the raw image at path, reading its layout from the
// header at path with the extension replaced by .hdr, or path + ".hdr"
func OpenENVI(path string) (*ENVI, error) {
	hdr, err := readENVIHeader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat raster: %w", err)
	}

	e := &ENVI{path: path, f: f}
	if err := e.parseHeader(hdr, info.Size()); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e, nil
}

func (e *ENVI) Path() string { return e.path }

func (e *ENVI) Projection() string { return e.projection }

func (e *ENVI) GeoTransform() [6]float64 { return e.geoTransform }

func (e *ENVI) Dimensions() (int, int) { return e.cols, e.rows }

func (e *ENVI) BandCount() int { return e.bands }

func (e *ENVI) NoData(band int) (float64, bool) { return e.nodata, e.hasNoData }

// Close releases the data file
func (e *ENVI) Close() error {
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}

// ReadBand reads one band row by row from the interleaved data
func (e *ENVI) ReadBand(band int) ([]float64, error) {
	if band < 1 || band > e.bands {
		return nil, fmt.Errorf("band %d out of range [1, %d]", band, e.bands)
	}

	b := band - 1
	stride, pick := 1, 0
	if e.interleave == "bip" {
		stride, pick = e.bands, b
	}
	rowBytes := e.cols * stride * e.bytesPerSample
	buf := make([]byte, rowBytes)

	out := make([]float64, e.cols*e.rows)
	for y := 0; y < e.rows; y++ {
		var row int64
		switch e.interleave {
		case "bsq":
			row = int64(b*e.rows + y)
		case "bil":
			row = int64(y*e.bands + b)
		default:
			row = int64(y)
		}
		if err := readFull(e.f, buf, e.offset+row*int64(rowBytes)); err != nil {
			return nil, fmt.Errorf("row %d: %w", y, err)
		}
		for x := 0; x < e.cols; x++ {
			out[y*e.cols+x] = e.sample(buf, x*stride+pick)
		}
	}
	return out, nil
}

func (e *ENVI) parseHeader(hdr map[string]string, size int64) error {
	var err error
	if e.cols, err = headerInt(hdr, "samples"); err != nil {
		return err
	}
	if e.rows, err = headerInt(hdr, "lines"); err != nil {
		return err
	}
	if e.bands, err = headerInt(hdr, "bands"); err != nil {
		return err
	}
	if e.cols <= 0 || e.rows <= 0 || e.bands <= 0 {
		return fmt.Errorf("empty image %dx%dx%d", e.cols, e.rows, e.bands)
	}
	if int64(e.cols)*int64(e.rows) > maxBandPixels {
		return fmt.Errorf("%w: image %dx%d exceeds %d pixels per band", ErrUnsupported, e.cols, e.rows, maxBandPixels)
	}

	code, err := headerInt(hdr, "data type")
	if err != nil {
		return err
	}
	layout, ok := enviTypes[code]
	if !ok {
		return fmt.Errorf("%w: ENVI data type %d", ErrUnsupported, code)
	}
	e.bytesPerSample = layout[1] / 8

	var order binary.ByteOrder = binary.LittleEndian
	if hdr["byte order"] == "1" {
		order = binary.BigEndian
	}
	if e.sample, err = sampleDecoder(order, layout[0], layout[1]); err != nil {
		return err
	}

	e.interleave = strings.ToLower(hdr["interleave"])
	switch e.interleave {
	case "":
		e.interleave = "bsq"
	case "bsq", "bil", "bip":
	default:
		return fmt.Errorf("%w: interleave %q", ErrUnsupported, e.interleave)
	}

	if v, ok := hdr["header offset"]; ok {
		off, err := strconv.ParseInt(v, 10, 64)
		if err != nil || off < 0 {
			return fmt.Errorf("invalid header offset %q", v)
		}
		e.offset = off
	}

	needed := int64(e.cols) * int64(e.rows) * int64(e.bands) * int64(e.bytesPerSample)
	if e.offset+needed > size {
		return fmt.Errorf("data holds %d bytes, image needs %d", size-e.offset, needed)
	}

	if v, ok := hdr["data ignore value"]; ok {
		if nd, err := strconv.ParseFloat(v, 64); err == nil {
			e.nodata, e.hasNoData = nd, true
		}
	}

	e.geoTransform = [6]float64{0, 1, 0, 0, 0, 1}
	mapInfo := splitList(hdr["map info"])
	if gt, ok := mapInfoTransform(mapInfo); ok {
		e.geoTransform = gt
	}
	e.projection = strings.TrimSpace(strings.Trim(hdr["coordinate system string"], "{}"))
	if e.projection == "" && len(mapInfo) > 0 {
		e.projection = mapInfoProjection(mapInfo)
	}
	return nil
}

// mapInfoTransform derives the geotransform from the projection name,
// reference pixel (1-based), its map coordinates and the pixel size
func mapInfoTransform(info []string) ([6]float64, bool) {
	if len(info) < 7 {
		return [6]float64{}, false
	}
	var v [6]float64
	for i := range v {
		f, err := strconv.ParseFloat(info[i+1], 64)
		if err != nil {
			return [6]float64{}, false
		}
		v[i] = f
	}
	refX, refY, east, north, dx, dy := v[0], v[1], v[2], v[3], v[4], v[5]
	return [6]float64{east - (refX-1)*dx, dx, 0, north + (refY-1)*dy, 0, -dy}, true
}

// mapInfoProjection names the projection with its zone, hemisphere and
// datum, skipping the numeric and key=value fields
func mapInfoProjection(info []string) string {
	parts := []string{info[0]}
	for _, s := range info[min(len(info), 7):] {
		if strings.Contains(s, "=") {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// readENVIHeader finds and parses the header of the image at path
func readENVIHeader(path string) (map[string]string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, candidate := range []string{base + ".hdr", path + ".hdr"} {
		f, err := os.Open(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parseENVIHeader(f)
	}
	return nil, errNoHeader
}

// parseENVIHeader reads "key = value" lines after the ENVI magic. Values
// in braces may span lines. Keys are lower-cased.
func parseENVIHeader(r io.Reader) (map[string]string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ENVI" {
		return nil, errors.New("not an ENVI header")
	}

	hdr := make(map[string]string)
	for sc.Scan() {
		line := sc.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "{") {
			for !strings.Contains(value, "}") && sc.Scan() {
				value += " " + strings.TrimSpace(sc.Text())
			}
		}
		hdr[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return hdr, sc.Err()
}

func headerInt(hdr map[string]string, key string) (int, error) {
	v, ok := hdr[key]
	if !ok {
		return 0, fmt.Errorf("missing header field %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid header field %q: %w", key, err)
	}
	return n, nil
}

// splitList splits a braced, comma separated header value
func splitList(v string) []string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "{") {
		return nil
	}
	v = strings.TrimSuffix(strings.TrimPrefix(v, "{"), "}")
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
