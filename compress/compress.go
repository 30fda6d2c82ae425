package compress

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ID is the compressor selector stored in the superblock.
type ID uint16

const (
	Gzip ID = iota + 1
	LZMA
	LZO
	XZ
	LZ4
	Zstd
)

func (id ID) String() string {
	switch id {
	case Gzip:
		return "gzip"
	case LZMA:
		return "lzma"
	case LZO:
		return "lzo"
	case XZ:
		return "xz"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return "unknown"
}

// Sentinel errors for package compress.
var (
	ErrUnknownCompressor = errors.New("unknown compressor")
	ErrOverflow          = errors.New("decompressed data exceeds buffer")
)

// Compressor is a SquashFS block codec with a matching stream format.
type Compressor interface {
	ID() ID
	Name() string

	// Compress writes the compressed form of src into dst and returns its
	// length. A zero length with a nil error means the data did not shrink
	// or did not fit in dst.
	Compress(dst, src []byte) (int, error)

	// Decompress expands src into dst and returns the number of bytes written.
	Decompress(dst, src []byte) (int, error)

	// Options returns the compressor options record written after the
	// superblock, or nil when the codec has none.
	Options() []byte

	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var registry = map[string]func() Compressor{
	"gzip": func() Compressor { return NewGzip() },
	"lz4":  func() Compressor { return NewLZ4() },
	"zstd": func() Compressor { return NewZstd() },
}

// Default is the codec used when none is configured.
const Default = "gzip"

// ByName returns a new codec for a name such as "gzip" or "zstd".
func ByName(name string) (Compressor, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCompressor, "%q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// ByID returns a new codec for an on-disk compressor id.
func ByID(id ID) (Compressor, error) {
	for _, ctor := range registry {
		c := ctor()
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownCompressor, "id %d (%s)", id, id)
}

// Names lists the registered codecs in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect picks the codec whose stream format starts with the given magic
// bytes. At least four bytes are needed for a positive match.
func Detect(magic []byte) (Compressor, bool) {
	switch {
	case bytes.HasPrefix(magic, zstdMagic):
		return NewZstd(), true
	case bytes.HasPrefix(magic, lz4Magic):
		return NewLZ4(), true
	case len(magic) >= 2 && magic[0] == 0x78 && (uint16(magic[0])<<8|uint16(magic[1]))%31 == 0:
		return NewGzip(), true
	}
	return nil, false
}

// readAll drains r into dst and fails if r holds more than len(dst) bytes.
func readAll(dst []byte, r io.Reader) (int, error) {
	n, err := io.ReadFull(r, dst)
	switch err {
	case nil:
		var probe [1]byte
		if m, _ := r.Read(probe[:]); m > 0 {
			return n, ErrOverflow
		}
		return n, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return n, nil
	}
	return n, err
}
