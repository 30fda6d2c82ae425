package sqfs

import (
	"io"

	"github.com/pkg/errors"
)

// writeTable writes fixed size records as metadata blocks followed by an
// index holding the absolute offset of every block. It returns the offset of
// the index, which is what the superblock points at.
//
// size must divide MetaBlockSize so that no record straddles two blocks.
func writeTable[T any](c *buildContext, records []T, size int, put func([]byte, T)) (uint64, error) {
	m := NewMetaWriter[io.Writer](c.out, c.comp)
	rec := make([]byte, size)

	var index []uint64
	for _, r := range records {
		if m.Offset() == 0 {
			index = append(index, m.Written())
		}
		put(rec, r)
		if err := m.Append(rec); err != nil {
			return 0, err
		}
	}
	if err := m.Flush(); err != nil {
		return 0, err
	}

	base := c.super.BytesUsed
	c.super.BytesUsed += m.Written()
	start := c.super.BytesUsed

	buf := make([]byte, 0, 8*len(index))
	for _, off := range index {
		buf = le.AppendUint64(buf, base+off)
	}
	if err := c.write(buf); err != nil {
		return 0, errors.Wrap(err, "writing table index")
	}
	return start, nil
}

func putFragment(b []byte, f fragmentEntry) {
	le.PutUint64(b[0:], f.Start)
	le.PutUint32(b[8:], f.Size)
	le.PutUint32(b[12:], 0)
}

func putID(b []byte, id uint32) {
	le.PutUint32(b, id)
}
