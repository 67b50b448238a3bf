package reconcile

import "testing"

func TestPatternsMatch(t *testing.T) {
	patterns := NewPatterns([]string{"*.tmp", "diff_*", "scratch/", "build/*", "**/quicklook/*.png", "  ", ""})

	tests := []struct {
		path string
		want bool
	}{
		{"a.tmp", true},
		{"sub/b.tmp", true},
		{"diff_LC08.png", true},
		{"out/diff_x.png", true},
		{"scratch", true},
		{"scratch/a.tif", true},
		{"deep/scratch/a.tif", true},
		{"scratchpad/a.tif", false},
		{"build/a.txt", true},
		{"x/build/a.txt", true},
		{"build/sub/a.txt", false},
		{"quicklook/a.png", true},
		{"a/b/quicklook/c.png", true},
		{"a/b/quicklook/c.jpg", false},
		{"LC08_sr_band1.tif", false},
		{`win\scratch\a.tif`, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := patterns.Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestPatternsEmpty(t *testing.T) {
	if NewPatterns(nil).Match("anything") {
		t.Error("empty patterns should match nothing")
	}
	if len(NewPatterns([]string{"", " "})) != 0 {
		t.Error("blank patterns should be dropped")
	}
}
