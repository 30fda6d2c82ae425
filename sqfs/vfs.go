package sqfs

import (
	"io/fs"
	"slices"
	"strings"

	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/pkg/errors"
)

// RootAttrs are the owner and permissions of the synthesized root directory.
type RootAttrs struct {
	UID  uint32
	GID  uint32
	Perm fs.FileMode
}

// DefaultRootAttrs gives root:root 0755.
var DefaultRootAttrs = RootAttrs{Perm: 0o755}

// Node is one entry of the tree. Nodes live in Tree.Nodes and refer to each
// other by index; the root is index 0 with Parent -1.
type Node struct {
	Name   string
	Mode   uint16 // unix type and permission bits
	UIDIdx uint16
	GIDIdx uint16
	Inode  uint32
	Ref    uint64 // inode record location, set while writing inodes
	Type   InodeType
	Parent int

	Dir    *DirInfo
	File   *FileInfo
	Target string
	Devno  uint32
}

type DirInfo struct {
	Children []int
	Size     uint64 // listing bytes
	Ref      uint64 // listing location in the directory table
	Subdirs  uint32

	names map[string]int
}

type FileInfo struct {
	Size       uint64
	ID         uint32
	StartBlock uint64
	Fragment   uint32
	FragOffset uint32
	BlockSizes []uint32 // full blocks only; the tail lives in a fragment
}

// Tree is the directory hierarchy folded from a flat entry list.
type Tree struct {
	Nodes []Node
	IDs   IDTable

	byInode []int
	files   map[uint32]int
	next    uint32
}

// NewTree places every entry below a synthesized root, sorts directories by
// name and numbers inodes. An entry naming the root itself (".", "/") must
// be a directory and replaces the root's owner and permissions.
func NewTree(entries []source.Entry, root RootAttrs, blockSize uint32) (*Tree, error) {
	t := &Tree{files: make(map[uint32]int)}

	rootMode := fs.ModeDir | root.Perm&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky)
	uid, gid := root.UID, root.GID
	seenRoot := false
	for _, e := range entries {
		comps, err := splitPath(e.Path)
		if err != nil {
			return nil, err
		}
		if len(comps) > 0 {
			continue
		}
		if seenRoot {
			return nil, errors.Wrapf(ErrExists, "%q: root listed twice", e.Path)
		}
		if !e.Mode.IsDir() {
			return nil, errors.Wrapf(ErrNotDirectory, "%q: root entry is %s", e.Path, e.Mode.Type())
		}
		seenRoot = true
		rootMode, uid, gid = e.Mode, e.UID, e.GID
	}

	if _, err := t.addNode(-1, "", source.Entry{Mode: rootMode, UID: uid, GID: gid}, blockSize); err != nil {
		return nil, err
	}

	for _, e := range entries {
		comps, _ := splitPath(e.Path)
		if len(comps) == 0 {
			continue
		}
		parent := 0
		for i, name := range comps[:len(comps)-1] {
			idx, ok := t.Nodes[parent].Dir.names[name]
			if !ok {
				return nil, errors.Wrapf(ErrAncestorMissing, "cannot create /%s: %s", strings.Join(comps, "/"), strings.Join(comps[:i+1], "/"))
			}
			if t.Nodes[idx].Dir == nil {
				return nil, errors.Wrapf(ErrNotDirectory, "cannot create /%s: %s", strings.Join(comps, "/"), strings.Join(comps[:i+1], "/"))
			}
			parent = idx
		}
		name := comps[len(comps)-1]
		if _, ok := t.Nodes[parent].Dir.names[name]; ok {
			return nil, errors.Wrapf(ErrExists, "cannot create /%s", strings.Join(comps, "/"))
		}
		if _, err := t.addNode(parent, name, e, blockSize); err != nil {
			return nil, errors.Wrapf(err, "cannot create /%s", strings.Join(comps, "/"))
		}
	}

	t.sortChildren(0)
	if err := t.number(); err != nil {
		return nil, err
	}
	return t, nil
}

// splitPath cleans p into its components. The root yields no components.
func splitPath(p string) ([]string, error) {
	if p == "" {
		return nil, errors.Wrap(ErrInvalidPath, "empty path")
	}
	var comps []string
	for _, c := range strings.Split(p, "/") {
		switch c {
		case "", ".":
			continue
		case "..":
			return nil, errors.Wrapf(ErrInvalidPath, "%q escapes the root", p)
		}
		if len(c) > MaxNameLen {
			return nil, errors.Wrapf(ErrNameTooLong, "%q: component is %d bytes", p, len(c))
		}
		comps = append(comps, c)
	}
	return comps, nil
}

func (t *Tree) addNode(parent int, name string, e source.Entry, blockSize uint32) (int, error) {
	mode, err := UnixMode(e.Mode)
	if err != nil {
		return 0, errors.Wrapf(err, "mode %s", e.Mode)
	}
	n := Node{Name: name, Mode: mode, Parent: parent}
	if n.UIDIdx, err = t.IDs.Index(e.UID); err != nil {
		return 0, err
	}
	if n.GIDIdx, err = t.IDs.Index(e.GID); err != nil {
		return 0, err
	}

	idx := len(t.Nodes)
	switch mode & sIFMT {
	case sIFDIR:
		n.Dir = &DirInfo{names: make(map[string]int)}
	case sIFREG:
		if prev, ok := t.files[e.ID]; ok {
			return 0, errors.Wrapf(ErrDuplicatePayload, "file id %d already used by /%s", e.ID, t.Path(prev))
		}
		n.File = &FileInfo{
			Size:       e.Size,
			ID:         e.ID,
			StartBlock: absent,
			Fragment:   noFragment,
			BlockSizes: make([]uint32, 0, e.Size/uint64(blockSize)),
		}
		t.files[e.ID] = idx
	case sIFLNK:
		n.Target = e.Target
	case sIFBLK, sIFCHR:
		if e.Major > MaxDevMajor || e.Minor > MaxDevMinor {
			return 0, errors.Wrapf(ErrFieldOverflow, "device %d:%d", e.Major, e.Minor)
		}
		n.Devno = EncodeDev(e.Major, e.Minor)
	}

	t.Nodes = append(t.Nodes, n)
	if parent >= 0 {
		d := t.Nodes[parent].Dir
		d.Children = append(d.Children, idx)
		d.names[name] = idx
		if n.Dir != nil {
			d.Subdirs++
		}
	}
	return idx, nil
}

func (t *Tree) sortChildren(dir int) {
	d := t.Nodes[dir].Dir
	slices.SortStableFunc(d.Children, func(a, b int) int {
		return strings.Compare(t.Nodes[a].Name, t.Nodes[b].Name)
	})
	for _, c := range d.Children {
		if t.Nodes[c].Dir != nil {
			t.sortChildren(c)
		}
	}
}

// maxInodeNumber is the highest inode number an image can hold.
var maxInodeNumber uint32 = 0xFFFFFFFE

// number assigns inode numbers depth first: a directory's subdirectories are
// numbered before its direct children, and the root comes last.
func (t *Tree) number() error {
	t.next = 2
	assign := func(idx int) error {
		if t.next > maxInodeNumber {
			return errors.Wrapf(ErrTooManyInodes, "more than %d", maxInodeNumber-1)
		}
		t.Nodes[idx].Inode = t.next
		t.next++
		return nil
	}

	var walk func(dir int) error
	walk = func(dir int) error {
		children := t.Nodes[dir].Dir.Children
		for _, c := range children {
			if t.Nodes[c].Dir != nil {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		for _, c := range children {
			if err := assign(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return err
	}
	if err := assign(0); err != nil {
		return err
	}

	t.byInode = make([]int, t.next)
	t.byInode[0], t.byInode[1] = -1, -1
	for i := range t.Nodes {
		t.byInode[t.Nodes[i].Inode] = i
	}
	return nil
}

// Root returns the root directory node.
func (t *Tree) Root() *Node { return &t.Nodes[0] }

// InodeCount is the number of numbered nodes.
func (t *Tree) InodeCount() uint32 { return uint32(len(t.Nodes)) }

// Node returns the node numbered ino.
func (t *Tree) Node(ino uint32) (*Node, bool) {
	if ino < 2 || int(ino) >= len(t.byInode) {
		return nil, false
	}
	return &t.Nodes[t.byInode[ino]], true
}

// FileByID returns the index of the regular file with payload id.
func (t *Tree) FileByID(id uint32) (int, bool) {
	idx, ok := t.files[id]
	return idx, ok
}

// Path returns the slash separated path of node idx, without a leading slash.
func (t *Tree) Path(idx int) string {
	var parts []string
	for ; idx > 0; idx = t.Nodes[idx].Parent {
		parts = append(parts, t.Nodes[idx].Name)
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}
