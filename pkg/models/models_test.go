package models

import (
	"errors"
	"testing"
)

// ============== FilePair Tests ==============

func TestFilePairNames(t *testing.T) {
	pair := FilePair{
		Kind:       KindRaster,
		Key:        "LC08/LC08_sr_band1.tif",
		MasterPath: "/master/LC08/LC08_sr_band1.tif",
		TestPath:   "/test/LC08/LC08_sr_band1.tif",
	}

	if pair.Basename() != "LC08_sr_band1.tif" {
		t.Errorf("Basename() = %s, want LC08_sr_band1.tif", pair.Basename())
	}
	if pair.Stem() != "LC08_sr_band1" {
		t.Errorf("Stem() = %s, want LC08_sr_band1", pair.Stem())
	}
}

func TestFileSetAbs(t *testing.T) {
	set := FileSet{Root: "/data", Ext: ".txt", Files: []string{"a.txt", "sub/b.txt"}}

	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	if got := set.Abs(1); got != "/data/sub/b.txt" {
		t.Errorf("Abs(1) = %s, want /data/sub/b.txt", got)
	}
}

// ============== DiffResult Tests ==============

func TestDiffResultSeverity(t *testing.T) {
	tests := []struct {
		name   string
		result DiffResult
		want   Severity
		class  Class
	}{
		{"Match", Match("raster"), SeverityPass, ClassNone},
		{"Projection", ProjectionMismatch("a", "b"), SeverityFail, ClassStructural},
		{"GeoTransform", GeoTransformMismatch("a", "b"), SeverityFail, ClassStructural},
		{"Dimension", DimensionMismatch("raster", "4x4", "4x5"), SeverityFail, ClassStructural},
		{"Pixel", PixelMismatch("raster", &DiffRaster{Count: 1}), SeverityFail, ClassContent},
		{"Schema", SchemaInvalid("bad", nil), SeverityFail, ClassStructural},
		{"Text", TextDiff([]string{"x"}, nil), SeverityFail, ClassContent},
		{"Name", NameMismatch("a.txt", "b.txt"), SeverityFail, ClassStructural},
		{"Size", SizeMismatch("image", 10, 12), SeverityWarning, ClassContent},
		{"Unreadable", Unreadable("raster", errors.New("boom")), SeverityFail, ClassUnreadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Severity(); got != tt.want {
				t.Errorf("Severity() = %s, want %s", got, tt.want)
			}
			if got := tt.result.Class(); got != tt.class {
				t.Errorf("Class() = %s, want %s", got, tt.class)
			}
			if tt.result.Summary() == "" {
				t.Error("Summary() should not be empty")
			}
		})
	}
}

func TestDiffResultWithNotes(t *testing.T) {
	base := Match("raster")
	noted := base.WithNotes("NoData undetermined")

	if len(base.Notes) != 0 {
		t.Error("WithNotes() must not modify the receiver")
	}
	if len(noted.Notes) != 1 || noted.Notes[0] != "NoData undetermined" {
		t.Errorf("Notes = %v, want [NoData undetermined]", noted.Notes)
	}
}

// ============== Report Tests ==============

func TestReportVerdict(t *testing.T) {
	pair := FilePair{Kind: KindText, Key: "a.txt"}

	t.Run("AllMatch", func(t *testing.T) {
		r := &Report{Entries: []Entry{{Pair: pair, Result: Match("text")}}}
		if r.Verdict() != StatusPass {
			t.Errorf("Verdict() = %s, want pass", r.Verdict())
		}
	})

	t.Run("SizeOnlyIsWarning", func(t *testing.T) {
		r := &Report{Entries: []Entry{{Pair: pair, Result: SizeMismatch("image", 1, 2)}}}
		if r.Verdict() != StatusPass {
			t.Errorf("Verdict() = %s, want pass", r.Verdict())
		}
		if r.Stats().Warnings != 1 {
			t.Errorf("Stats().Warnings = %d, want 1", r.Stats().Warnings)
		}
	})

	t.Run("FailureFails", func(t *testing.T) {
		r := &Report{Entries: []Entry{
			{Pair: pair, Result: Match("text")},
			{Pair: pair, Result: TextDiff([]string{"x"}, nil)},
		}}
		if r.Verdict() != StatusFail {
			t.Errorf("Verdict() = %s, want fail", r.Verdict())
		}
	})

	t.Run("SkippedKindPasses", func(t *testing.T) {
		r := &Report{
			Skipped:  []Kind{KindXML},
			Unpaired: []UnmatchedFile{{Kind: KindXML, Key: "a.xml", Side: LocationMaster}},
		}
		if r.Verdict() != StatusPass {
			t.Errorf("Verdict() = %s, want pass", r.Verdict())
		}
		if r.Stats().Unpaired != 1 {
			t.Errorf("Stats().Unpaired = %d, want 1", r.Stats().Unpaired)
		}
	})

	t.Run("UnmatchedFails", func(t *testing.T) {
		r := &Report{TestOnly: []UnmatchedFile{{Kind: KindText, Key: "b.txt", Side: LocationTest}}}
		if r.Verdict() != StatusFail {
			t.Errorf("Verdict() = %s, want fail", r.Verdict())
		}
	})
}

func TestRunStatusExitCode(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   int
	}{
		{StatusPass, 0},
		{StatusFail, 1},
		{StatusFatal, 2},
		{StatusCancelled, 3},
		{RunStatus("bogus"), 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ============== Run Tests ==============

func TestRunValidate(t *testing.T) {
	exts := map[Kind][]string{KindText: {".txt"}}

	t.Run("ValidRun", func(t *testing.T) {
		r := &Run{MasterRoot: "/m", TestRoot: "/t", Extensions: exts}
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("EmptyMasterRoot", func(t *testing.T) {
		r := &Run{TestRoot: "/t", Extensions: exts}
		err := r.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "MasterRoot" {
			t.Errorf("Validate() error = %v, want MasterRoot ValidationError", err)
		}
	})

	t.Run("RenderWithoutOutputDir", func(t *testing.T) {
		r := &Run{MasterRoot: "/m", TestRoot: "/t", RenderDiffs: true, Extensions: exts}
		if err := r.Validate(); err == nil {
			t.Error("Validate() should fail when rendering without an output directory")
		}
	})

	t.Run("NoKinds", func(t *testing.T) {
		r := &Run{MasterRoot: "/m", TestRoot: "/t"}
		if err := r.Validate(); err == nil {
			t.Error("Validate() should fail without extensions")
		}
	})
}

func TestConfigError(t *testing.T) {
	inner := &ValidationError{Field: "TestRoot", Message: "missing"}
	err := error(&ConfigError{Err: inner})

	if !IsConfigError(err) {
		t.Error("IsConfigError() should detect ConfigError")
	}
	if IsConfigError(inner) {
		t.Error("IsConfigError() should not match plain errors")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Error("ConfigError should unwrap to the inner error")
	}
}
