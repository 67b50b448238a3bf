package models

import (
	"errors"
	"time"
)

// Run describes one validation run between a master and a test tree
type Run struct {
	ID         string
	MasterRoot string
	TestRoot   string
	OutputDir  string

	// SchemaPath enables XML schema validation when set
	SchemaPath string

	// MaskNoData excludes NoData positions from pixel comparison
	MaskNoData bool

	// RenderDiffs writes a difference image for every pixel mismatch
	RenderDiffs bool

	// Extensions maps each kind to the file extensions it covers
	Extensions map[Kind][]string

	ExcludePatterns []string
	CreatedAt       time.Time
}

// Validate checks if the run configuration is complete
func (r *Run) Validate() error {
	if r.MasterRoot == "" {
		return &ValidationError{Field: "MasterRoot", Message: "master directory is required"}
	}
	if r.TestRoot == "" {
		return &ValidationError{Field: "TestRoot", Message: "test directory is required"}
	}
	if r.RenderDiffs && r.OutputDir == "" {
		return &ValidationError{Field: "OutputDir", Message: "output directory is required to render differences"}
	}
	if len(r.Extensions) == 0 {
		return &ValidationError{Field: "Extensions", Message: "at least one file kind must be configured"}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ConfigError marks a condition that aborts the whole run before any
// comparison starts: missing roots, a requested schema that is absent, an
// invalid run configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err aborts the run
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
