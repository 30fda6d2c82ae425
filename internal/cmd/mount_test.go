package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsOverlap(t *testing.T) {
	tests := []struct {
		name     string
		path1    string
		path2    string
		expected bool
	}{
		{
			name:     "identical paths",
			path1:    "/srv/images/app.sqfs",
			path2:    "/srv/images/app.sqfs",
			expected: true,
		},
		{
			name:     "image inside mountpoint",
			path1:    "/mnt/app/base.sqfs",
			path2:    "/mnt/app",
			expected: true,
		},
		{
			name:     "mountpoint below image directory",
			path1:    "/srv/images",
			path2:    "/srv/images/mnt",
			expected: true,
		},
		{
			name:     "image next to mountpoint",
			path1:    "/srv/images/app.sqfs",
			path2:    "/srv/mnt",
			expected: false,
		},
		{
			name:     "shared name prefix",
			path1:    "/mnt/app.sqfs",
			path2:    "/mnt/app",
			expected: false,
		},
		{
			name:     "dot segments",
			path1:    "/mnt/app/../images/app.sqfs",
			path2:    "/mnt/app",
			expected: false,
		},
		{
			name:     "relative image inside mountpoint",
			path1:    "mnt/app.sqfs",
			path2:    "mnt",
			expected: true,
		},
		{
			name:     "relative paths - separate",
			path1:    "app.sqfs",
			path2:    "mnt",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pathsOverlap(tt.path1, tt.path2)
			if result != tt.expected {
				t.Errorf("pathsOverlap(%q, %q) = %v, expected %v", tt.path1, tt.path2, result, tt.expected)
			}
		})
	}
}

func TestPathsOverlapSymlinkedMountpoint(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "mnt")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}
	image := filepath.Join(real, "app.sqfs")
	if err := os.WriteFile(image, []byte("hsqs"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "current")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if !pathsOverlap(image, link) {
		t.Errorf("image %s should overlap symlinked mountpoint %s", image, link)
	}
	if !pathsOverlap(filepath.Join(link, "app.sqfs"), real) {
		t.Errorf("image reached through %s should overlap %s", link, real)
	}

	other := filepath.Join(dir, "other")
	if err := os.Mkdir(other, 0o755); err != nil {
		t.Fatal(err)
	}
	if pathsOverlap(image, other) {
		t.Errorf("image %s should not overlap %s", image, other)
	}
}
