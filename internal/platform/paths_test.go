package platform

import (
	"path/filepath"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	saved := userHome
	userHome = func() (string, error) { return "/home/qa", nil }
	defer func() { userHome = saved }()

	tests := []struct {
		in   string
		want string
	}{
		{"~", filepath.Clean("/home/qa")},
		{"~/master/LC08", filepath.Join("/home/qa", "master", "LC08")},
		{"~other/x", filepath.Clean("~other/x")},
		{"data/../test/", filepath.Clean("test")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/data/master", false},
		{"relative/test", false},
		{"", true},
		{"   ", true},
		{"https://example.com/master", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil {
				if _, ok := err.(*PathError); !ok {
					t.Errorf("ValidatePath(%q) returned %T, want *PathError", tt.path, err)
				}
			}
		})
	}
}
