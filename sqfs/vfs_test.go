package sqfs

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func dirEntry(p string, perm fs.FileMode) source.Entry {
	return source.Entry{Path: p, Mode: fs.ModeDir | perm}
}

func fileEntry(p string, id uint32, size uint64) source.Entry {
	return source.Entry{Path: p, Mode: 0o644, ID: id, Size: size}
}

func TestTreeNumbering(t *testing.T) {
	entries := []source.Entry{
		fileEntry("b", 1, 0),
		dirEntry("a", 0o755),
		dirEntry("a/sub", 0o700),
		fileEntry("a/sub/x", 2, 3),
		fileEntry("a/f", 0, 5000),
		{Path: "a/l", Mode: fs.ModeSymlink | 0o777, Target: "f"},
	}
	tree, err := NewTree(entries, DefaultRootAttrs, 4096)
	assert.NilError(t, err)

	numbers := make(map[string]uint32)
	for i := range tree.Nodes {
		numbers["/"+tree.Path(i)] = tree.Nodes[i].Inode
	}
	want := map[string]uint32{
		"/a/sub/x": 2,
		"/a/f":     3,
		"/a/l":     4,
		"/a/sub":   5,
		"/a":       6,
		"/b":       7,
		"/":        8,
	}
	assert.DeepEqual(t, numbers, want)
	assert.Equal(t, tree.InodeCount(), uint32(7))

	n, ok := tree.Node(6)
	assert.Assert(t, ok)
	assert.Equal(t, n.Name, "a")
	assert.Equal(t, n.Dir.Subdirs, uint32(1))
	assert.Equal(t, linkCount(n), uint32(3))
	assert.Equal(t, linkCount(tree.Root()), uint32(3))
	_, ok = tree.Node(1)
	assert.Assert(t, !ok)

	idx, ok := tree.FileByID(0)
	assert.Assert(t, ok)
	assert.Equal(t, tree.Path(idx), "a/f")
}

func TestTreeSortsByName(t *testing.T) {
	entries := []source.Entry{
		fileEntry("c", 0, 0),
		fileEntry("B", 1, 0),
		fileEntry("a", 2, 0),
		fileEntry("a.txt", 3, 0),
	}
	tree, err := NewTree(entries, DefaultRootAttrs, 4096)
	assert.NilError(t, err)

	var names []string
	for _, c := range tree.Root().Dir.Children {
		names = append(names, tree.Nodes[c].Name)
	}
	assert.DeepEqual(t, names, []string{"B", "a", "a.txt", "c"})
}

func TestTreeRootAttrs(t *testing.T) {
	tree, err := NewTree(nil, RootAttrs{UID: 1000, GID: 100, Perm: 0o700}, 4096)
	assert.NilError(t, err)
	root := tree.Root()
	assert.Equal(t, root.Mode, uint16(0o040700))
	assert.Equal(t, root.Inode, uint32(2))
	uid, _ := tree.IDs.ID(root.UIDIdx)
	gid, _ := tree.IDs.ID(root.GIDIdx)
	assert.Equal(t, uid, uint32(1000))
	assert.Equal(t, gid, uint32(100))

	// A "." entry overrides the synthesized root.
	entries := []source.Entry{
		{Path: ".", Mode: fs.ModeDir | 0o750, UID: 5, GID: 6},
		fileEntry("./f", 0, 1),
	}
	tree, err = NewTree(entries, DefaultRootAttrs, 4096)
	assert.NilError(t, err)
	assert.Equal(t, tree.Root().Mode, uint16(0o040750))
	assert.Equal(t, tree.IDs.Len(), 3)
	assert.Assert(t, is.Len(tree.Root().Dir.Children, 1))
}

func TestTreeErrors(t *testing.T) {
	long := strings.Repeat("x", MaxNameLen+1)
	tests := []struct {
		name    string
		entries []source.Entry
		want    error
	}{
		{"missing ancestor", []source.Entry{fileEntry("x/y", 0, 0)}, ErrAncestorMissing},
		{"parent is a file", []source.Entry{fileEntry("b", 0, 0), fileEntry("b/c", 1, 0)}, ErrNotDirectory},
		{"duplicate", []source.Entry{dirEntry("a", 0o755), dirEntry("a", 0o755)}, ErrExists},
		{"dot dot", []source.Entry{fileEntry("../etc", 0, 0)}, ErrInvalidPath},
		{"empty path", []source.Entry{fileEntry("", 0, 0)}, ErrInvalidPath},
		{"long name", []source.Entry{fileEntry(long, 0, 0)}, ErrNameTooLong},
		{"root twice", []source.Entry{dirEntry(".", 0o755), dirEntry("/", 0o755)}, ErrExists},
		{"root not a dir", []source.Entry{fileEntry(".", 0, 0)}, ErrNotDirectory},
		{"irregular", []source.Entry{{Path: "p", Mode: fs.ModeIrregular}}, ErrUnsupportedType},
		{"device major too large", []source.Entry{{Path: "d", Mode: fs.ModeDevice | 0o600, Major: MaxDevMajor + 1}}, ErrFieldOverflow},
		{"device minor too large", []source.Entry{{Path: "d", Mode: fs.ModeDevice | fs.ModeCharDevice | 0o600, Minor: MaxDevMinor + 1}}, ErrFieldOverflow},
		{"shared payload id", []source.Entry{fileEntry("a", 3, 1), fileEntry("b", 3, 1)}, ErrDuplicatePayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.entries, DefaultRootAttrs, 4096)
			assert.Check(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestTreeErrorNamesPath(t *testing.T) {
	_, err := NewTree([]source.Entry{fileEntry("usr/bin/env", 0, 0)}, DefaultRootAttrs, 4096)
	assert.ErrorContains(t, err, "cannot create /usr/bin/env")
}

func TestTreePrint(t *testing.T) {
	entries := []source.Entry{
		dirEntry("a", 0o755),
		fileEntry("a/f", 0, 1),
		{Path: "a/l", Mode: fs.ModeSymlink | 0o777, Target: "f"},
		{Path: "null", Mode: fs.ModeDevice | fs.ModeCharDevice | 0o666, Major: 1, Minor: 3},
		fileEntry("z", 1, 0),
	}
	tree, err := NewTree(entries, DefaultRootAttrs, 4096)
	assert.NilError(t, err)

	var buf bytes.Buffer
	assert.NilError(t, tree.Print(&buf))
	want := `/ (7, 40755)
+- a/ (4, 40755)
|  +- f (2)
|  +- l (3) -> f
+- null (5) c 259
+- z (6)
`
	assert.Equal(t, buf.String(), want)
}
