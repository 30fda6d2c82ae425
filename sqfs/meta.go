package sqfs

import (
	"encoding/binary"
	"io"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/pkg/errors"
)

// MetaWriter packs records into 8 KiB metadata blocks. Each block is written
// to the sink with a two byte length header, compressed when that helps and
// raw (header bit 15 set) otherwise.
type MetaWriter[S io.Writer] struct {
	sink    S
	comp    compress.Compressor
	buf     [MetaBlockSize]byte
	out     [MetaBlockSize + 2]byte
	offset  int
	written uint64
}

func NewMetaWriter[S io.Writer](sink S, comp compress.Compressor) *MetaWriter[S] {
	return &MetaWriter[S]{sink: sink, comp: comp}
}

// Append stages p, writing out every block that fills up.
func (m *MetaWriter[S]) Append(p []byte) error {
	for len(p) > 0 {
		n := copy(m.buf[m.offset:], p)
		m.offset += n
		p = p[n:]
		if m.offset == MetaBlockSize {
			if err := m.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes out the staged bytes as a block. It is a no-op when nothing
// is staged.
func (m *MetaWriter[S]) Flush() error {
	if m.offset == 0 {
		return nil
	}
	raw := m.buf[:m.offset]
	n, err := m.comp.Compress(m.out[2:], raw)
	if err != nil {
		return compressionError(err, "metadata block")
	}

	var block []byte
	if n > 0 && n < len(raw) {
		binary.LittleEndian.PutUint16(m.out[:2], uint16(n))
		block = m.out[:n+2]
	} else {
		binary.LittleEndian.PutUint16(m.out[:2], uint16(len(raw))|metaStored)
		copy(m.out[2:], raw)
		block = m.out[:len(raw)+2]
	}
	if err := writeFull(m.sink, block); err != nil {
		return errors.Wrap(err, "writing metadata block")
	}
	m.written += uint64(len(block))
	m.offset = 0
	return nil
}

// Ref locates the next appended byte: block start << 16 | offset in block.
func (m *MetaWriter[S]) Ref() uint64 {
	return m.written<<16 | uint64(m.offset)
}

// Written is the number of bytes already flushed to the sink.
func (m *MetaWriter[S]) Written() uint64 { return m.written }

// Offset is the number of staged bytes in the current block.
func (m *MetaWriter[S]) Offset() int { return m.offset }

func (m *MetaWriter[S]) Sink() S { return m.sink }

func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return errors.Wrapf(ErrShortWrite, "wrote %d of %d bytes", n, len(p))
	}
	return nil
}
