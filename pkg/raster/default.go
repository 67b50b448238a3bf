//go:build !gdal

package raster

// Driver names the raster backend compiled in
const Driver = "built-in GeoTIFF and ENVI readers"

// DefaultOpener reads GeoTIFF files and ENVI images with the built-in
// readers
func DefaultOpener() Opener {
	return ExtOpener{ByExt: map[string]Opener{
		".tif":  GeoTIFFOpener,
		".tiff": GeoTIFFOpener,
		".img":  ENVIOpener,
		".bsq":  ENVIOpener,
		".bil":  ENVIOpener,
		".bip":  ENVIOpener,
	}}
}
