package models

import (
	"path/filepath"
	"strings"
)

// Kind identifies the family of artifacts a file belongs to. Each kind is
// routed to its own validator.
type Kind string

const (
	// KindRaster covers georeferenced raster datasets (GeoTIFF, HDF, ENVI)
	KindRaster Kind = "raster"
	// KindText covers line-oriented text and metadata files
	KindText Kind = "text"
	// KindXML covers XML metadata, diffed as text and optionally schema-checked
	KindXML Kind = "xml"
	// KindImage covers preview and gverify images (JPEG, PNG, GIF)
	KindImage Kind = "image"
)

// Kinds lists every kind in the fixed order a run processes them
var Kinds = []Kind{KindRaster, KindText, KindXML, KindImage}

// FileSet is the ordered list of files of one extension under a root.
// Files holds paths relative to Root, sorted lexically.
type FileSet struct {
	Root  string
	Ext   string
	Files []string
}

// Len returns the number of files in the set
func (s FileSet) Len() int {
	return len(s.Files)
}

// Abs returns the absolute path of the i-th file
func (s FileSet) Abs(i int) string {
	return filepath.Join(s.Root, s.Files[i])
}

// FilePair associates a master file with the test file sharing its key
type FilePair struct {
	// Kind is the artifact family of both files
	Kind Kind `json:"kind"`

	// Key is the basename shared by both files
	Key string `json:"key"`

	// MasterPath is the absolute path in the master tree
	MasterPath string `json:"master_path"`

	// TestPath is the absolute path in the test tree
	TestPath string `json:"test_path"`
}

// Basename returns the file name shared by both sides
func (p FilePair) Basename() string {
	return filepath.Base(p.Key)
}

// Stem returns the basename without its extension
func (p FilePair) Stem() string {
	base := p.Basename()
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// UnmatchedFile is a file present in only one of the two trees
type UnmatchedFile struct {
	Kind Kind `json:"kind"`

	// Key is the path relative to the tree root
	Key  string   `json:"key"`
	Path string   `json:"path"`
	Side Location `json:"side"`
}

// Location indicates which tree a file was found in
type Location string

const (
	// LocationMaster indicates file exists in the master tree only
	LocationMaster Location = "master"
	// LocationTest indicates file exists in the test tree only
	LocationTest Location = "test"
)
