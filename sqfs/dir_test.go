package sqfs

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/dendrascience/pkg2sqfs/source"
	"gotest.tools/v3/assert"
)

// flatTree returns a root holding n files named f000, f001, ... with their
// inode types set as writeInodes would.
func flatTree(t *testing.T, n int) *Tree {
	t.Helper()
	var entries []source.Entry
	for i := 0; i < n; i++ {
		entries = append(entries, fileEntry(fmt.Sprintf("f%03d", i), uint32(i), 0))
	}
	tree, err := NewTree(entries, DefaultRootAttrs, 4096)
	assert.NilError(t, err)
	for _, c := range tree.Root().Dir.Children {
		tree.Nodes[c].Type = InodeFile
	}
	return tree
}

func TestEncodeDirectoryRuns(t *testing.T) {
	tests := []struct {
		name  string
		files int
		setup func(tree *Tree)
		runs  int
	}{
		{name: "single run", files: 10, runs: 1},
		{name: "split at 256 entries", files: 300, runs: 2},
		{name: "exactly 256 entries", files: 256, runs: 1},
		{
			name:  "inode block changes",
			files: 12,
			setup: func(tree *Tree) {
				for _, c := range tree.Root().Dir.Children[5:] {
					tree.Nodes[c].Ref = uint64(MetaBlockSize+2) << 16
				}
			},
			runs: 2,
		},
		{
			name:  "inode delta out of range",
			files: 4,
			setup: func(tree *Tree) {
				children := tree.Root().Dir.Children
				base := tree.Nodes[children[0]].Inode
				tree.Nodes[children[2]].Inode = base + 40000
				tree.Nodes[children[3]].Inode = base + 40001
			},
			runs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := flatTree(t, tt.files)
			if tt.setup != nil {
				tt.setup(tree)
			}

			var sink bytes.Buffer
			dm := NewMetaWriter(&sink, compress.NewGzip())
			assert.NilError(t, dm.Append(make([]byte, 7)))
			assert.NilError(t, encodeDirectory(dm, tree, 0))

			d := tree.Root().Dir
			assert.Equal(t, d.Ref, uint64(7))
			want := uint64(tt.runs*dirHeaderSize + tt.files*(dirEntrySize+4))
			assert.Equal(t, d.Size, want)
			assert.Equal(t, uint64(dm.Offset())+dm.Written(), 7+want, "listing bytes appended")
		})
	}
}

func TestEncodeEmptyDirectory(t *testing.T) {
	tree := flatTree(t, 0)
	var sink bytes.Buffer
	dm := NewMetaWriter(&sink, compress.NewGzip())
	assert.NilError(t, encodeDirectory(dm, tree, 0))
	assert.Equal(t, tree.Root().Dir.Size, uint64(0))
	assert.Equal(t, dm.Offset(), 0)
}
