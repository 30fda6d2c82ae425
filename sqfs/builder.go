package sqfs

import (
	"io"
	"os"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stats describes a finished image.
type Stats struct {
	Inodes     uint32
	IDs        int
	Fragments  int
	DataBlocks int
	BytesUsed  uint64
	ImageSize  uint64
	Compressor string
	BlockSize  uint32
	Flags      Flags
	Tree       *Tree
}

// buildContext carries all mutable state of one build.
type buildContext struct {
	out   io.WriteSeeker
	opts  *options
	comp  compress.Compressor
	log   *logrus.Entry
	super *Superblock
	tree  *Tree

	block     []byte
	scratch   []byte
	frag      []byte
	fragUsed  int
	fragments []fragmentEntry
}

// Build writes an image of pkg to out, which must be positioned at offset 0
// of an empty file. On error the output is incomplete and must be discarded.
func Build(out io.WriteSeeker, pkg source.Package, opts ...Option) (*Stats, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	super, err := NewSuperblock(o.blockSize, o.timestamp, o.comp.ID())
	if err != nil {
		return nil, err
	}
	c := &buildContext{
		out:     out,
		opts:    o,
		comp:    o.comp,
		log:     o.log,
		super:   super,
		block:   make([]byte, o.blockSize),
		scratch: make([]byte, o.blockSize),
		frag:    make([]byte, o.blockSize),
	}

	stages := []struct {
		name string
		run  func() error
	}{
		{"tree", func() error { return c.buildTree(pkg) }},
		{"superblock", c.writeHeader},
		{"data", func() error { return c.writeData(pkg) }},
		{"metadata", c.writeMetadata},
		{"fragment table", c.writeFragmentTable},
		{"id table", c.writeIDTable},
		{"finalize", func() error { return c.super.WriteAt(c.out, 0) }},
		{"pad", c.pad},
	}
	for _, st := range stages {
		if err := st.run(); err != nil {
			return nil, errors.Wrapf(err, "%s", st.name)
		}
		c.log.WithFields(logrus.Fields{
			"stage":      st.name,
			"bytes_used": c.super.BytesUsed,
			"fragments":  len(c.fragments),
		}).Debug("stage complete")
	}

	st := c.stats()
	c.log.WithFields(logrus.Fields{
		"inodes":     st.Inodes,
		"ids":        st.IDs,
		"fragments":  st.Fragments,
		"bytes_used": st.BytesUsed,
	}).Info("image written")
	return st, nil
}

func (c *buildContext) buildTree(pkg source.Package) error {
	entries, err := pkg.Entries()
	if err != nil {
		return errors.Wrap(err, "reading entries")
	}
	c.tree, err = NewTree(entries, c.opts.root, c.super.BlockSize)
	if err != nil {
		return err
	}
	c.super.InodeCount = c.tree.InodeCount()
	c.super.IDCount = uint16(c.tree.IDs.Len())
	c.log.WithFields(logrus.Fields{
		"entries": len(entries),
		"inodes":  c.super.InodeCount,
		"ids":     c.super.IDCount,
	}).Debug("tree built")
	return nil
}

// writeHeader writes the placeholder superblock and, when the compressor has
// any, its options block.
func (c *buildContext) writeHeader() error {
	if _, err := c.out.Seek(SuperblockSize, io.SeekStart); err != nil {
		return err
	}
	if err := c.super.WriteAt(c.out, 0); err != nil {
		return err
	}
	opts := c.comp.Options()
	if opts == nil {
		return nil
	}
	hdr := le.AppendUint16(nil, uint16(len(opts))|metaStored)
	if err := c.write(append(hdr, opts...)); err != nil {
		return errors.Wrap(err, "compressor options")
	}
	c.super.Flags |= FlagCompressorOptions
	return nil
}

// writeMetadata writes the inode table to the image while spooling the
// directory table to a scratch file, then appends the spool.
func (c *buildContext) writeMetadata() error {
	spool, err := os.CreateTemp(c.opts.tempDir, "pkg2sqfs-dirs-*")
	if err != nil {
		return errors.Wrap(err, "creating directory spool")
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	im := NewMetaWriter[io.Writer](c.out, c.comp)
	dm := NewMetaWriter(spool, c.comp)
	if err := c.writeInodes(im, dm); err != nil {
		return err
	}
	if err := im.Flush(); err != nil {
		return err
	}
	if err := dm.Flush(); err != nil {
		return err
	}

	c.super.RootInode = c.tree.Root().Ref
	c.super.InodeTableStart = c.super.BytesUsed
	c.super.BytesUsed += im.Written()
	c.super.DirTableStart = c.super.BytesUsed

	if _, err := dm.Sink().Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding directory spool")
	}
	n, err := io.Copy(c.out, dm.Sink())
	if err != nil {
		return errors.Wrap(err, "copying directory table")
	}
	if uint64(n) != dm.Written() {
		return errors.Wrapf(ErrShortWrite, "directory table: copied %d of %d bytes", n, dm.Written())
	}
	c.super.BytesUsed += dm.Written()
	return nil
}

func (c *buildContext) writeFragmentTable() error {
	if len(c.fragments) == 0 {
		return nil
	}
	start, err := writeTable(c, c.fragments, fragmentEntrySize, putFragment)
	if err != nil {
		return err
	}
	c.super.FragmentTableStart = start
	c.super.FragmentCount = uint32(len(c.fragments))
	return nil
}

func (c *buildContext) writeIDTable() error {
	start, err := writeTable(c, c.tree.IDs.ids, 4, putID)
	if err != nil {
		return err
	}
	c.super.IDTableStart = start
	return nil
}

// pad fills the image with zeros up to a multiple of the device block size.
// BytesUsed does not include the padding.
func (c *buildContext) pad() error {
	rem := c.super.BytesUsed % uint64(c.opts.devBlockSize)
	if rem == 0 {
		return nil
	}
	padding := make([]byte, uint64(c.opts.devBlockSize)-rem)
	return writeFull(c.out, padding)
}

// write appends p at the current end of the image.
func (c *buildContext) write(p []byte) error {
	if err := writeFull(c.out, p); err != nil {
		return err
	}
	c.super.BytesUsed += uint64(len(p))
	return nil
}

func (c *buildContext) stats() *Stats {
	st := &Stats{
		Inodes:     c.super.InodeCount,
		IDs:        int(c.super.IDCount),
		Fragments:  len(c.fragments),
		BytesUsed:  c.super.BytesUsed,
		ImageSize:  c.super.BytesUsed,
		Compressor: c.comp.Name(),
		BlockSize:  c.super.BlockSize,
		Flags:      c.super.Flags,
		Tree:       c.tree,
	}
	if rem := st.BytesUsed % uint64(c.opts.devBlockSize); rem != 0 {
		st.ImageSize += uint64(c.opts.devBlockSize) - rem
	}
	for i := range c.tree.Nodes {
		if fi := c.tree.Nodes[i].File; fi != nil {
			st.DataBlocks += len(fi.BlockSizes)
		}
	}
	return st
}
