package sqfs

import (
	"io"

	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/pkg/errors"
)

type fragmentEntry struct {
	Start uint64
	Size  uint32 // bit 24 set when stored raw
}

// writeData streams every payload into data blocks and fragments.
func (c *buildContext) writeData(pkg source.Package) error {
	if err := pkg.Rewind(); err != nil {
		return errors.Wrap(err, "rewinding payload stream")
	}

	seen := make(map[uint32]bool)
	for {
		id, err := pkg.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading payload stream")
		}
		idx, ok := c.tree.FileByID(id)
		if !ok {
			return errors.Wrapf(ErrUnknownPayload, "file id %d", id)
		}
		if seen[id] {
			return errors.Wrapf(ErrDuplicatePayload, "/%s (file id %d)", c.tree.Path(idx), id)
		}
		seen[id] = true
		if err := c.writeFile(idx, pkg); err != nil {
			return err
		}
	}

	if c.fragUsed > 0 {
		if err := c.flushFragment(); err != nil {
			return err
		}
	}

	for i := range c.tree.Nodes {
		fi := c.tree.Nodes[i].File
		if fi == nil || seen[fi.ID] {
			continue
		}
		if fi.Size > 0 {
			return errors.Wrapf(ErrTruncated, "/%s: no payload for %d bytes", c.tree.Path(i), fi.Size)
		}
		fi.StartBlock = c.super.BytesUsed
	}
	return nil
}

func (c *buildContext) writeFile(idx int, r io.Reader) error {
	fi := c.tree.Nodes[idx].File
	bs := uint64(c.super.BlockSize)
	fi.StartBlock = c.super.BytesUsed
	fi.BlockSizes = fi.BlockSizes[:0]

	for remaining := fi.Size; remaining > 0; {
		n := min(remaining, bs)
		chunk := c.block[:n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return errors.Wrapf(ErrTruncated, "/%s: payload ends %d bytes early", c.tree.Path(idx), remaining)
			}
			return errors.Wrapf(err, "/%s: reading payload", c.tree.Path(idx))
		}

		if n == bs {
			size, stored, err := c.appendBlock(chunk)
			if err != nil {
				return errors.Wrapf(err, "/%s", c.tree.Path(idx))
			}
			if stored {
				c.super.Flags |= FlagUncompressedData
			}
			fi.BlockSizes = append(fi.BlockSizes, size)
		} else if err := c.addFragment(fi, chunk); err != nil {
			return errors.Wrapf(err, "/%s", c.tree.Path(idx))
		}
		remaining -= n
	}
	return nil
}

// appendBlock writes data at the end of the image, compressed if that makes
// it smaller. The returned size word has bit 24 set for raw data.
func (c *buildContext) appendBlock(data []byte) (size uint32, stored bool, err error) {
	n, err := c.comp.Compress(c.scratch, data)
	if err != nil {
		return 0, false, compressionError(err, "data block")
	}
	out := c.scratch[:n]
	size = uint32(n)
	if n == 0 || n >= len(data) {
		out = data
		size = uint32(len(data)) | blockStored
		stored = true
	}
	if err := c.write(out); err != nil {
		return 0, false, err
	}
	return size, stored, nil
}

func (c *buildContext) addFragment(fi *FileInfo, tail []byte) error {
	if c.fragUsed+len(tail) > len(c.frag) {
		if err := c.flushFragment(); err != nil {
			return err
		}
	}
	if uint64(len(c.fragments)) >= uint64(noFragment) {
		return errors.Wrap(ErrFieldOverflow, "fragment count")
	}
	fi.Fragment = uint32(len(c.fragments))
	fi.FragOffset = uint32(c.fragUsed)
	c.fragUsed += copy(c.frag[c.fragUsed:], tail)
	return nil
}

func (c *buildContext) flushFragment() error {
	start := c.super.BytesUsed
	size, stored, err := c.appendBlock(c.frag[:c.fragUsed])
	if err != nil {
		return errors.Wrap(err, "fragment block")
	}
	c.fragments = append(c.fragments, fragmentEntry{Start: start, Size: size})
	c.super.Flags &^= FlagNoFragments
	c.super.Flags |= FlagAlwaysFragments
	if stored {
		c.super.Flags |= FlagUncompressedFragments
	}
	c.fragUsed = 0
	clear(c.frag)
	return nil
}
