package sqfs

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// encodeDirectory writes the listing of directory idx. Children must already
// have their inode references.
//
// Entries are grouped into runs that share a header. A run ends after
// MaxDirEntries entries, when the next child's inode lives in another
// metadata block, or when its inode number is too far from the run's first.
func encodeDirectory[S io.Writer](dm *MetaWriter[S], t *Tree, idx int) error {
	d := t.Nodes[idx].Dir
	d.Ref = dm.Ref()
	d.Size = 0

	var hdr [dirHeaderSize]byte
	var ent [dirEntrySize]byte
	children := d.Children
	for len(children) > 0 {
		first := &t.Nodes[children[0]]
		block := first.Ref >> 16
		if block > math.MaxUint32 {
			return errors.Wrapf(ErrFieldOverflow, "/%s: inode block %d", t.Path(children[0]), block)
		}

		count := 0
		for _, c := range children {
			n := &t.Nodes[c]
			delta := int64(n.Inode) - int64(first.Inode)
			if count == MaxDirEntries || n.Ref>>16 != block || delta < math.MinInt16 || delta > math.MaxInt16 {
				break
			}
			count++
		}

		binary.LittleEndian.PutUint32(hdr[0:], uint32(count-1))
		binary.LittleEndian.PutUint32(hdr[4:], uint32(block))
		binary.LittleEndian.PutUint32(hdr[8:], first.Inode)
		if err := dm.Append(hdr[:]); err != nil {
			return err
		}
		d.Size += dirHeaderSize

		for _, c := range children[:count] {
			n := &t.Nodes[c]
			binary.LittleEndian.PutUint16(ent[0:], uint16(n.Ref&0xFFFF))
			binary.LittleEndian.PutUint16(ent[2:], uint16(int16(int64(n.Inode)-int64(first.Inode))))
			binary.LittleEndian.PutUint16(ent[4:], uint16(n.Type.Basic()))
			binary.LittleEndian.PutUint16(ent[6:], uint16(len(n.Name)-1))
			if err := dm.Append(ent[:]); err != nil {
				return err
			}
			if err := dm.Append([]byte(n.Name)); err != nil {
				return err
			}
			d.Size += dirEntrySize + uint64(len(n.Name))
		}
		children = children[count:]
	}
	return nil
}
