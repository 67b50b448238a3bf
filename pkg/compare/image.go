package compare

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
)

// ImageComparator compares preview images. Byte-identical files match
// without decoding; otherwise both images are decoded and compared pixel
// by pixel. Images whose pixels agree but whose files differ in size are
// a SizeMismatch.
type ImageComparator struct {
	binary *BinaryComparator
}

// NewImageComparator creates an image comparator
func NewImageComparator() *ImageComparator {
	return &ImageComparator{binary: NewBinaryComparator(64 * 1024)}
}

// Name returns the comparator name
func (c *ImageComparator) Name() string {
	return CheckImage
}

// Validate compares the pair
func (c *ImageComparator) Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult {
	return c.Compare(ctx, log.WithFields(pairFields(pair)), pair.MasterPath, pair.TestPath)
}

// Compare classifies the difference between two image files
func (c *ImageComparator) Compare(ctx context.Context, log logging.Logger, masterPath, testPath string) models.DiffResult {
	mi, err := os.Stat(masterPath)
	if err != nil {
		log.Error(ctx, "Failed to stat master image", err, nil)
		return models.Unreadable(CheckImage, fmt.Errorf("master %s: %w", masterPath, err))
	}
	ti, err := os.Stat(testPath)
	if err != nil {
		log.Error(ctx, "Failed to stat test image", err, nil)
		return models.Unreadable(CheckImage, fmt.Errorf("test %s: %w", testPath, err))
	}

	if c.binary != nil {
		same, _, err := c.binary.Equal(ctx, masterPath, testPath)
		if err == nil && same {
			log.Info(ctx, "Images are byte-identical", nil)
			return models.Match(CheckImage)
		}
	}

	if mi.Size() != ti.Size() {
		log.Warn(ctx, "Image file sizes do not match", logging.Fields{"master_bytes": mi.Size(), "test_bytes": ti.Size()})
	}

	master, err := decodeImage(masterPath)
	if err != nil {
		log.Error(ctx, "Failed to decode master image", err, nil)
		return models.Unreadable(CheckImage, fmt.Errorf("master %s: %w", masterPath, err))
	}
	test, err := decodeImage(testPath)
	if err != nil {
		log.Error(ctx, "Failed to decode test image", err, nil)
		return models.Unreadable(CheckImage, fmt.Errorf("test %s: %w", testPath, err))
	}

	mb, tb := master.Bounds(), test.Bounds()
	if mb.Dx() != tb.Dx() || mb.Dy() != tb.Dy() {
		ms, ts := fmt.Sprintf("%dx%d", mb.Dx(), mb.Dy()), fmt.Sprintf("%dx%d", tb.Dx(), tb.Dy())
		log.Error(ctx, "Image dimensions do not match", nil, logging.Fields{"master_dimensions": ms, "test_dimensions": ts})
		return models.DimensionMismatch(CheckImage, ms, ts)
	}

	if diff := DiffImages(master, test); diff != nil {
		log.Error(ctx, "Image pixels differ", nil, logging.Fields{"count": diff.Count, "max_diff": diff.MaxDiff})
		return models.PixelMismatch(CheckImage, diff)
	}

	if mi.Size() != ti.Size() {
		return models.SizeMismatch(CheckImage, mi.Size(), ti.Size())
	}
	log.Info(ctx, "Images match", nil)
	return models.Match(CheckImage)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DiffImages returns the per-pixel difference of two equally sized
// images, or nil when every pixel matches. The difference of a pixel is
// its largest channel difference on an 8-bit scale.
func DiffImages(master, test image.Image) *models.DiffRaster {
	mb, tb := master.Bounds(), test.Bounds()
	cols, rows := mb.Dx(), mb.Dy()

	diff := &models.DiffRaster{Cols: cols, Rows: rows, Band: 1, Values: make([]float64, cols*rows)}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			mr, mg, mbl, ma := master.At(mb.Min.X+x, mb.Min.Y+y).RGBA()
			tr, tg, tbl, ta := test.At(tb.Min.X+x, tb.Min.Y+y).RGBA()

			d := math.Max(
				math.Max(channelDiff(mr, tr), channelDiff(mg, tg)),
				math.Max(channelDiff(mbl, tbl), channelDiff(ma, ta)))
			if d == 0 {
				continue
			}
			diff.Values[y*cols+x] = d
			diff.Count++
			diff.MaxDiff = math.Max(diff.MaxDiff, d)
		}
	}

	if diff.Count == 0 {
		return nil
	}
	diff.Bands = []int{1}
	return diff
}

// channelDiff compares two 16-bit channels on an 8-bit scale
func channelDiff(a, b uint32) float64 {
	return math.Abs(float64(a>>8) - float64(b>>8))
}
