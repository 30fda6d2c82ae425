package sqfs

import (
	"io"
	"path"

	"github.com/pkg/errors"
)

// Verify checks the structure of an image: table order, directory listings
// against the inodes they point at, link counts and inode numbering. With
// readData set every file is also read back in full. It returns every problem
// found; an empty result means the image is consistent.
func (img *Image) Verify(readData bool) []error {
	var errs []error
	report := func(format string, args ...any) {
		errs = append(errs, corrupt(format, args...))
	}

	s := &img.Super
	if s.InodeTableStart < SuperblockSize {
		report("inode table starts at %d, inside the superblock", s.InodeTableStart)
	}
	if s.DirTableStart <= s.InodeTableStart {
		report("directory table at %d does not follow inode table at %d", s.DirTableStart, s.InodeTableStart)
	}
	last := s.DirTableStart
	if s.HasFragments() {
		if s.FragmentTableStart <= last {
			report("fragment table at %d does not follow directory table at %d", s.FragmentTableStart, last)
		}
		last = s.FragmentTableStart
	}
	if s.IDTableStart <= last {
		report("id table at %d does not follow %d", s.IDTableStart, last)
	}
	if s.IDTableStart >= s.BytesUsed {
		report("id table at %d lies past bytes used %d", s.IDTableStart, s.BytesUsed)
	}

	root, err := img.Root()
	if err != nil {
		return append(errs, errors.Wrap(err, "root inode"))
	}
	if !root.IsDir() {
		return append(errs, corrupt("root inode is a %s", root.Type))
	}

	seen := make(map[uint32]string)
	var check func(p string, ino *Inode, parent uint32)
	check = func(p string, ino *Inode, parent uint32) {
		if ino.Number == 0 || ino.Number > s.InodeCount+1 {
			report("%s: inode number %d out of range", p, ino.Number)
		}
		if prev, ok := seen[ino.Number]; ok {
			report("%s: inode number %d already used by %s", p, ino.Number, prev)
		}
		seen[ino.Number] = p

		if !ino.IsDir() {
			if readData && ino.Type.Basic() == InodeFile {
				n, err := io.Copy(io.Discard, img.FileReader(ino))
				if err != nil {
					errs = append(errs, errors.Wrapf(err, "%s", p))
				} else if uint64(n) != ino.Size {
					report("%s: read %d of %d bytes", p, n, ino.Size)
				}
			}
			return
		}

		if ino.Parent != parent {
			report("%s: parent is %d, expected %d", p, ino.Parent, parent)
		}
		entries, err := img.ReadDir(ino)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "%s", p))
			return
		}
		var subdirs uint32
		for i, e := range entries {
			cp := path.Join(p, e.Name)
			if i > 0 && entries[i-1].Name >= e.Name {
				report("%s: entries out of order", cp)
			}
			child, err := img.ReadInode(e.Ref)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "%s", cp))
				continue
			}
			if child.Number != e.Inode {
				report("%s: entry says inode %d, record says %d", cp, e.Inode, child.Number)
			}
			if child.Type.Basic() != e.Type {
				report("%s: entry type %s, inode type %s", cp, e.Type, child.Type)
			}
			if child.IsDir() {
				subdirs++
			}
			check(cp, child, ino.Number)
		}
		if ino.Nlink != 2+subdirs {
			report("%s: link count %d, expected %d", p, ino.Nlink, 2+subdirs)
		}
	}
	check("/", root, root.Parent)

	if uint32(len(seen)) != s.InodeCount {
		report("reached %d inodes, superblock says %d", len(seen), s.InodeCount)
	}
	return errs
}
