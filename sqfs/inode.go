package sqfs

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

var le = binary.LittleEndian

// linkCount follows the kernel convention: a directory has "." plus one ".."
// per subdirectory, so files and other children add no links. Regular files
// never share inodes.
func linkCount(n *Node) uint32 {
	if n.Dir != nil {
		return 2 + n.Dir.Subdirs
	}
	return 1
}

// inodeType picks the basic or extended record for n.
func inodeType(n *Node) InodeType {
	switch n.Mode & sIFMT {
	case sIFDIR:
		if n.Dir.Size > math.MaxUint16 || n.Dir.Ref>>16 > math.MaxUint32 {
			return InodeExtDir
		}
		return InodeDir
	case sIFREG:
		if n.File.StartBlock > math.MaxUint32 || n.File.Size > math.MaxUint32 || linkCount(n) > 1 {
			return InodeExtFile
		}
		return InodeFile
	case sIFLNK:
		return InodeSymlink
	case sIFBLK:
		return InodeBlockDev
	case sIFCHR:
		return InodeCharDev
	case sIFIFO:
		return InodeFifo
	case sIFSOCK:
		return InodeSocket
	}
	return 0
}

// writeInodes encodes every inode in ascending number order. Directory
// listings go to dm as each directory is reached.
func (c *buildContext) writeInodes(im *MetaWriter[io.Writer], dm *MetaWriter[*os.File]) error {
	for ino := uint32(2); ino < c.tree.next; ino++ {
		idx := c.tree.byInode[ino]
		if err := c.writeInode(im, dm, idx); err != nil {
			return errors.Wrapf(err, "inode %d (/%s)", ino, c.tree.Path(idx))
		}
	}
	return nil
}

func (c *buildContext) writeInode(im *MetaWriter[io.Writer], dm *MetaWriter[*os.File], idx int) error {
	t := c.tree
	n := &t.Nodes[idx]
	n.Ref = im.Ref()

	if n.Dir != nil {
		if err := encodeDirectory(dm, t, idx); err != nil {
			return err
		}
	}
	n.Type = inodeType(n)
	if n.Type == 0 {
		return errors.Wrapf(ErrUnsupportedType, "mode %o", n.Mode)
	}

	rec := make([]byte, 0, 64)
	rec = le.AppendUint16(rec, uint16(n.Type))
	rec = le.AppendUint16(rec, n.Mode)
	rec = le.AppendUint16(rec, n.UIDIdx)
	rec = le.AppendUint16(rec, n.GIDIdx)
	rec = le.AppendUint32(rec, c.super.ModTime)
	rec = le.AppendUint32(rec, n.Inode)

	switch n.Type {
	case InodeDir, InodeExtDir:
		d := n.Dir
		block := d.Ref >> 16
		if block > math.MaxUint32 || d.Size > math.MaxUint32 {
			return errors.Wrapf(ErrFieldOverflow, "directory listing at block %d, %d bytes", block, d.Size)
		}
		parent := uint32(rootParent)
		if n.Parent >= 0 {
			parent = t.Nodes[n.Parent].Inode
		}
		if n.Type == InodeDir {
			rec = le.AppendUint32(rec, uint32(block))
			rec = le.AppendUint32(rec, linkCount(n))
			rec = le.AppendUint16(rec, uint16(d.Size))
			rec = le.AppendUint16(rec, uint16(d.Ref&0xFFFF))
			rec = le.AppendUint32(rec, parent)
			break
		}
		rec = le.AppendUint32(rec, linkCount(n))
		rec = le.AppendUint32(rec, uint32(d.Size))
		rec = le.AppendUint32(rec, uint32(block))
		rec = le.AppendUint32(rec, parent)
		rec = le.AppendUint16(rec, 0)
		rec = le.AppendUint16(rec, uint16(d.Ref&0xFFFF))
		rec = le.AppendUint32(rec, noXattr)

	case InodeFile, InodeExtFile:
		fi := n.File
		if want := fi.Size / uint64(c.super.BlockSize); uint64(len(fi.BlockSizes)) != want {
			return errors.Wrapf(ErrTruncated, "%d of %d blocks written", len(fi.BlockSizes), want)
		}
		if n.Type == InodeFile {
			rec = le.AppendUint32(rec, uint32(fi.StartBlock))
			rec = le.AppendUint32(rec, fi.Fragment)
			rec = le.AppendUint32(rec, fi.FragOffset)
			rec = le.AppendUint32(rec, uint32(fi.Size))
		} else {
			rec = le.AppendUint64(rec, fi.StartBlock)
			rec = le.AppendUint64(rec, fi.Size)
			rec = le.AppendUint64(rec, absent)
			rec = le.AppendUint32(rec, linkCount(n))
			rec = le.AppendUint32(rec, fi.Fragment)
			rec = le.AppendUint32(rec, fi.FragOffset)
			rec = le.AppendUint32(rec, noXattr)
		}
		for _, bs := range fi.BlockSizes {
			rec = le.AppendUint32(rec, bs)
		}

	case InodeSymlink:
		if uint64(len(n.Target)) > math.MaxUint32 {
			return errors.Wrap(ErrFieldOverflow, "symlink target")
		}
		rec = le.AppendUint32(rec, linkCount(n))
		rec = le.AppendUint32(rec, uint32(len(n.Target)))
		rec = append(rec, n.Target...)

	case InodeBlockDev, InodeCharDev:
		rec = le.AppendUint32(rec, linkCount(n))
		rec = le.AppendUint32(rec, n.Devno)

	case InodeFifo, InodeSocket:
		rec = le.AppendUint32(rec, linkCount(n))
	}

	return im.Append(rec)
}
