package sqfs

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

func TestMetaWriterCompressed(t *testing.T) {
	var sink bytes.Buffer
	m := NewMetaWriter(&sink, compress.NewGzip())

	assert.NilError(t, m.Append(make([]byte, 1000)))
	assert.Equal(t, m.Ref(), uint64(1000))
	assert.Equal(t, sink.Len(), 0)

	assert.NilError(t, m.Flush())
	hdr := binary.LittleEndian.Uint16(sink.Bytes())
	assert.Assert(t, hdr&metaStored == 0, "zeros should compress")
	assert.Equal(t, int(hdr)+2, sink.Len())
	assert.Equal(t, m.Written(), uint64(sink.Len()))
	assert.Equal(t, m.Offset(), 0)

	// Flushing an empty block writes nothing.
	assert.NilError(t, m.Flush())
	assert.Equal(t, m.Written(), uint64(sink.Len()))
}

func TestMetaWriterStored(t *testing.T) {
	noise := make([]byte, MetaBlockSize+10)
	_, err := rand.Read(noise)
	assert.NilError(t, err)

	var sink bytes.Buffer
	m := NewMetaWriter(&sink, compress.NewGzip())
	assert.NilError(t, m.Append(noise))

	// The first block filled up and went out raw.
	assert.Equal(t, sink.Len(), MetaBlockSize+2)
	hdr := binary.LittleEndian.Uint16(sink.Bytes())
	assert.Equal(t, hdr, uint16(MetaBlockSize|metaStored))
	assert.DeepEqual(t, sink.Bytes()[2:], noise[:MetaBlockSize])
	assert.Equal(t, m.Ref(), uint64(MetaBlockSize+2)<<16|10)

	assert.NilError(t, m.Flush())
	tail := sink.Bytes()[MetaBlockSize+2:]
	assert.Equal(t, binary.LittleEndian.Uint16(tail), uint16(10|metaStored))
	assert.DeepEqual(t, tail[2:], noise[MetaBlockSize:])
}

func TestMetaWriterRefNeverPointsAtFullBlock(t *testing.T) {
	var sink bytes.Buffer
	m := NewMetaWriter(&sink, compress.NewGzip())
	rec := make([]byte, 16)
	for i := 0; i < 2*MetaBlockSize/len(rec); i++ {
		assert.Assert(t, m.Ref()&0xFFFF < MetaBlockSize)
		assert.NilError(t, m.Append(rec))
	}
	assert.Equal(t, m.Offset(), 0)
}

// halfWriter accepts only half of every write without reporting an error.
type halfWriter struct{ bytes.Buffer }

func (h *halfWriter) Write(p []byte) (int, error) {
	return h.Buffer.Write(p[:len(p)/2])
}

func TestMetaWriterShortWrite(t *testing.T) {
	m := NewMetaWriter(&halfWriter{}, compress.NewGzip())
	assert.NilError(t, m.Append([]byte("some inode bytes")))
	err := m.Flush()
	assert.Check(t, errors.Is(err, ErrShortWrite), "got %v", err)
	assert.Equal(t, m.Written(), uint64(0))
}
