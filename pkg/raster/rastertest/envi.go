package rastertest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// enviType maps sample types to ENVI data type codes
var enviType = map[SampleType]int{
	Uint8:   1,
	Int16:   2,
	Int32:   3,
	Float32: 4,
	Float64: 5,
	Uint16:  12,
}

// WriteENVI writes img as little-endian raw data at path with its header
// at path minus the extension plus ".hdr". interleave is bsq, bil or bip.
// A north-up GeoTransform is written as UTM map info.
func WriteENVI(path string, img Image, interleave string) error {
	if img.Cols <= 0 || img.Rows <= 0 || len(img.Bands) == 0 {
		return fmt.Errorf("empty image")
	}

	var data bytes.Buffer
	bands := len(img.Bands)
	at := func(b, x, y int) float64 { return img.Bands[b][y*img.Cols+x] }
	switch interleave {
	case "bsq":
		for b := 0; b < bands; b++ {
			for y := 0; y < img.Rows; y++ {
				for x := 0; x < img.Cols; x++ {
					writeSample(&data, img.Type, at(b, x, y))
				}
			}
		}
	case "bil":
		for y := 0; y < img.Rows; y++ {
			for b := 0; b < bands; b++ {
				for x := 0; x < img.Cols; x++ {
					writeSample(&data, img.Type, at(b, x, y))
				}
			}
		}
	case "bip":
		for y := 0; y < img.Rows; y++ {
			for x := 0; x < img.Cols; x++ {
				for b := 0; b < bands; b++ {
					writeSample(&data, img.Type, at(b, x, y))
				}
			}
		}
	default:
		return fmt.Errorf("unknown interleave %q", interleave)
	}

	lines := []string{
		"ENVI",
		"description = {rastertest fixture}",
		"samples = " + strconv.Itoa(img.Cols),
		"lines   = " + strconv.Itoa(img.Rows),
		"bands   = " + strconv.Itoa(bands),
		"header offset = 0",
		"file type = ENVI Standard",
		"data type = " + strconv.Itoa(enviType[img.Type]),
		"interleave = " + interleave,
		"byte order = 0",
	}
	if gt := img.GeoTransform; gt != [6]float64{} {
		lines = append(lines, fmt.Sprintf("map info = {UTM, 1.000, 1.000, %s, %s, %s, %s,\n 13, North, WGS-84, units=Meters}",
			num(gt[0]), num(gt[3]), num(gt[1]), num(-gt[5])))
	}
	if img.NoData != "" {
		lines = append(lines, "data ignore value = "+img.NoData)
	}

	if err := os.WriteFile(path, data.Bytes(), 0644); err != nil {
		return err
	}
	hdr := strings.TrimSuffix(path, filepath.Ext(path)) + ".hdr"
	return os.WriteFile(hdr, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
