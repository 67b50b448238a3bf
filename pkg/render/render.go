// Package render writes difference rasters as PNG heat maps
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/storage"
)

// Prefix starts the name of every rendered file
const Prefix = "diff_"

// Renderer writes difference images into one output backend
type Renderer struct {
	out storage.Backend
}

// NewRenderer creates a renderer writing under outDir, creating it if needed
func NewRenderer(outDir string) (*Renderer, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := storage.NewLocal(outDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{out: out}, nil
}

// NewRendererWithBackend creates a renderer writing to an existing backend
func NewRendererWithBackend(out storage.Backend) *Renderer {
	return &Renderer{out: out}
}

// FileName returns the rendered file name for a compared file:
// diff_<name without extension>.png
func FileName(outName string) string {
	base := filepath.Base(outName)
	return Prefix + strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}

// Render writes the heat map of diff and returns the written path.
// Callers log and continue on error; a failed render never fails a pair.
func (r *Renderer) Render(ctx context.Context, log logging.Logger, masterPath, testPath string, diff *models.DiffRaster, outName string) (string, error) {
	fields := logging.Fields{"master": masterPath, "test": testPath}

	if diff == nil || diff.Cols <= 0 || diff.Rows <= 0 || len(diff.Values) != diff.Cols*diff.Rows {
		err := fmt.Errorf("no difference raster to render")
		log.Warn(ctx, "Difference image not rendered", fields)
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, HeatMap(diff)); err != nil {
		log.Error(ctx, "Failed to encode difference image", err, fields)
		return "", fmt.Errorf("failed to encode difference image: %w", err)
	}

	name := FileName(outName)
	if err := r.out.Write(ctx, name, &buf, int64(buf.Len()), nil); err != nil {
		log.Error(ctx, "Failed to write difference image", err, fields)
		return "", fmt.Errorf("failed to write difference image: %w", err)
	}

	path := filepath.Join(r.out.Root(), name)
	fields["image"] = path
	log.Info(ctx, "Difference image written", fields)
	return path, nil
}

// Render writes one difference image under outDir
func Render(ctx context.Context, log logging.Logger, masterPath, testPath string, diff *models.DiffRaster, outDir, outName string) (string, error) {
	r, err := NewRenderer(outDir)
	if err != nil {
		log.Error(ctx, "Failed to prepare output directory", err, logging.Fields{"dir": outDir})
		return "", err
	}
	return r.Render(ctx, log, masterPath, testPath, diff, outName)
}

// HeatMap scales the differences to the largest finite one. Zero and
// masked positions are black; infinite differences take the hottest color.
func HeatMap(diff *models.DiffRaster) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, diff.Cols, diff.Rows))

	scale := diff.MaxDiff
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		scale = 1
	}

	for y := 0; y < diff.Rows; y++ {
		for x := 0; x < diff.Cols; x++ {
			v := diff.Values[y*diff.Cols+x]
			if v == 0 || math.IsNaN(v) {
				img.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			img.SetRGBA(x, y, hot(math.Min(v/scale, 1)))
		}
	}
	return img
}

// hot maps t in (0, 1] from dark red through yellow to white
func hot(t float64) color.RGBA {
	ramp := func(v float64) uint8 {
		return uint8(math.Round(255 * math.Max(0, math.Min(1, v))))
	}
	// keep the smallest differences visible against the black background
	t = 0.1 + 0.9*t
	return color.RGBA{R: ramp(3 * t), G: ramp(3*t - 1), B: ramp(3*t - 2), A: 255}
}
