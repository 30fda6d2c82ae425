package compress

import (
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"
)

var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// lz4LegacyVersion is the only block format version SquashFS readers accept.
const lz4LegacyVersion = 1

type lz4Compressor struct {
	buf []byte
}

// NewLZ4 returns the LZ4 block codec.
func NewLZ4() Compressor {
	return &lz4Compressor{}
}

func (l *lz4Compressor) ID() ID       { return LZ4 }
func (l *lz4Compressor) Name() string { return "lz4" }

// Options encodes the version and flags words of the lz4 options record.
func (l *lz4Compressor) Options() []byte {
	opts := make([]byte, 8)
	binary.LittleEndian.PutUint32(opts[0:], lz4LegacyVersion)
	binary.LittleEndian.PutUint32(opts[4:], 0)
	return opts
}

func (l *lz4Compressor) Compress(dst, src []byte) (int, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(l.buf) < bound {
		l.buf = make([]byte, bound)
	}
	n, err := lz4.CompressBlock(src, l.buf[:bound], nil)
	if err != nil {
		return 0, err
	}
	if n == 0 || n >= len(src) || n > len(dst) {
		return 0, nil
	}
	return copy(dst, l.buf[:n]), nil
}

func (l *lz4Compressor) Decompress(dst, src []byte) (int, error) {
	return lz4.UncompressBlock(src, dst)
}

func (l *lz4Compressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (l *lz4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
