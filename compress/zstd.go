package compress

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type zstdCompressor struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

// NewZstd returns the zstandard codec.
func NewZstd() Compressor {
	return &zstdCompressor{}
}

func (z *zstdCompressor) ID() ID          { return Zstd }
func (z *zstdCompressor) Name() string    { return "zstd" }
func (z *zstdCompressor) Options() []byte { return nil }

func (z *zstdCompressor) init() error {
	z.once.Do(func() {
		z.enc, z.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1))
		if z.err != nil {
			return
		}
		z.dec, z.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return z.err
}

func (z *zstdCompressor) Compress(dst, src []byte) (int, error) {
	if err := z.init(); err != nil {
		return 0, err
	}
	out := z.enc.EncodeAll(src, nil)
	if len(out) >= len(src) || len(out) > len(dst) {
		return 0, nil
	}
	return copy(dst, out), nil
}

func (z *zstdCompressor) Decompress(dst, src []byte) (int, error) {
	if err := z.init(); err != nil {
		return 0, err
	}
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, err
	}
	if len(out) > len(dst) {
		return 0, ErrOverflow
	}
	return copy(dst, out), nil
}

func (z *zstdCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (z *zstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}
