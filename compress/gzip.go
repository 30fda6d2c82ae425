package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Gzip stores zlib framed deflate data, which is what SquashFS calls gzip.
type gzipCompressor struct {
	level int
	buf   bytes.Buffer
}

// NewGzip returns the zlib codec at maximum compression.
func NewGzip() Compressor {
	return &gzipCompressor{level: zlib.BestCompression}
}

func (g *gzipCompressor) ID() ID          { return Gzip }
func (g *gzipCompressor) Name() string    { return "gzip" }
func (g *gzipCompressor) Options() []byte { return nil }

func (g *gzipCompressor) Compress(dst, src []byte) (int, error) {
	g.buf.Reset()
	w, err := zlib.NewWriterLevel(&g.buf, g.level)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(src); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if g.buf.Len() >= len(src) || g.buf.Len() > len(dst) {
		return 0, nil
	}
	return copy(dst, g.buf.Bytes()), nil
}

func (g *gzipCompressor) Decompress(dst, src []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return readAll(dst, r)
}

func (g *gzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zlib.NewWriterLevel(w, g.level)
}

func (g *gzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}
