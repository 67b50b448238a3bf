package config

import (
	"strings"

	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	Compare  CompareConfig    `yaml:"compare"`
	Output   OutputConfig     `yaml:"output"`
	Logging  LoggingConfig    `yaml:"logging"`
	ESPA     ESPAConfig       `yaml:"espa"`
	Download DownloadConfig   `yaml:"download"`
	Storage  storage.S3Config `yaml:"storage"`
}

// CompareConfig holds settings for a validation run
type CompareConfig struct {
	MaskNoData  bool     `yaml:"mask_nodata"`
	RenderDiffs bool     `yaml:"render_diffs"`
	RasterExts  []string `yaml:"raster_exts"`
	TextExts    []string `yaml:"text_exts"`
	XMLExts     []string `yaml:"xml_exts"`
	ImageExts   []string `yaml:"image_exts"`
	Exclude     []string `yaml:"exclude"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" or "text", file sink only
	Level  string `yaml:"level"`  // file sink level
	File   string `yaml:"file"`   // empty = console only
}

// ESPAConfig holds the ordering service endpoints
type ESPAConfig struct {
	Environments map[string]string `yaml:"environments"`
	OrderSpecs   string            `yaml:"order_specs"`
}

// DownloadConfig holds downloader settings
type DownloadConfig struct {
	MaxWorkers     int   `yaml:"max_workers"`
	BandwidthLimit int64 `yaml:"bandwidth_limit"` // bytes per second, 0 = unlimited
	SkipExisting   bool  `yaml:"skip_existing"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Compare: CompareConfig{
			MaskNoData:  true,
			RenderDiffs: true,
			RasterExts:  []string{".tif", ".img"},
			TextExts:    []string{".txt"},
			XMLExts:     []string{".xml"},
			ImageExts:   []string{".jpg", ".png"},
			Exclude:     []string{"diff_*", "*.tmp"},
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "debug",
			File:   "",
		},
		ESPA: ESPAConfig{
			Environments: map[string]string{
				"ops": "https://espa.cr.usgs.gov",
				"tst": "https://espa-tst.cr.usgs.gov",
				"dev": "https://espa-dev.cr.usgs.gov",
			},
			OrderSpecs: "",
		},
		Download: DownloadConfig{
			MaxWorkers:     4,
			BandwidthLimit: 0,
			SkipExisting:   true,
		},
		Storage: storage.S3Config{
			UseSSL: true,
		},
	}
}

// Extensions returns the configured extensions per kind
func (c *Config) Extensions() map[models.Kind][]string {
	return map[models.Kind][]string{
		models.KindRaster: normalizeExts(c.Compare.RasterExts),
		models.KindText:   normalizeExts(c.Compare.TextExts),
		models.KindXML:    normalizeExts(c.Compare.XMLExts),
		models.KindImage:  normalizeExts(c.Compare.ImageExts),
	}
}

// Host returns the ordering service host for an environment name
func (c *Config) Host(env string) (string, bool) {
	host, ok := c.ESPA.Environments[strings.ToLower(env)]
	return host, ok
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	seen := make(map[string]models.Kind)
	for _, kind := range models.Kinds {
		for _, ext := range c.Extensions()[kind] {
			if other, dup := seen[ext]; dup {
				return &models.ValidationError{
					Field:   "compare",
					Message: "extension " + ext + " is listed for both " + string(other) + " and " + string(kind),
				}
			}
			seen[ext] = kind
		}
	}
	if len(seen) == 0 {
		return &models.ValidationError{
			Field:   "compare",
			Message: "at least one extension must be configured",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Download.MaxWorkers < 1 {
		return &models.ValidationError{
			Field:   "download.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Download.BandwidthLimit < 0 {
		return &models.ValidationError{
			Field:   "download.bandwidth_limit",
			Message: "must not be negative",
		}
	}

	return nil
}
