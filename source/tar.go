package source

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Tar reads entries from a tar archive, optionally wrapped in gzip, zstd or
// lz4 framing. Rewinding reopens the archive.
type Tar struct {
	path    string
	log     *logrus.Entry
	entries []Entry

	f      *os.File
	dec    io.Closer
	tr     *tar.Reader
	nextID uint32
	open   bool
}

func OpenTar(path string, log *logrus.Entry) (*Tar, error) {
	t := &Tar{path: path, log: log}
	if err := t.reopen(); err != nil {
		return nil, err
	}
	if err := t.scan(); err != nil {
		t.Close()
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return t, nil
}

func (t *Tar) reopen() error {
	if err := t.Close(); err != nil {
		return err
	}
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)

	var r io.Reader = br
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return errors.Wrapf(err, "%s: gzip header", t.path)
		}
		r, t.dec = gz, gz
	default:
		// zlib has no reliable magic, so only self-describing frames are sniffed.
		if c, ok := compress.Detect(magic); ok && c.ID() != compress.Gzip {
			rc, err := c.NewReader(br)
			if err != nil {
				f.Close()
				return errors.Wrapf(err, "%s: %s stream", t.path, c.Name())
			}
			r, t.dec = rc, rc
		}
	}

	t.f = f
	t.tr = tar.NewReader(r)
	t.nextID = 0
	t.open = true
	return nil
}

func (t *Tar) scan() error {
	for {
		hdr, err := t.tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if name == "" {
			name = "."
		}
		e := Entry{
			Path: name,
			Mode: hdr.FileInfo().Mode(),
			UID:  uint32(hdr.Uid),
			GID:  uint32(hdr.Gid),
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			e.ID = t.nextID
			e.Size = uint64(hdr.Size)
			t.nextID++
		case tar.TypeSymlink:
			e.Target = hdr.Linkname
		case tar.TypeChar, tar.TypeBlock:
			e.Major = uint32(hdr.Devmajor)
			e.Minor = uint32(hdr.Devminor)
		case tar.TypeDir, tar.TypeFifo:
		case tar.TypeLink:
			t.log.WithFields(logrus.Fields{"path": name, "target": hdr.Linkname}).
				Warn("skipping hard link")
			continue
		default:
			t.log.WithFields(logrus.Fields{"path": name, "type": string(hdr.Typeflag)}).
				Debug("skipping tar header")
			continue
		}
		t.entries = append(t.entries, e)
	}
}

func (t *Tar) Entries() ([]Entry, error) {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out, nil
}

func (t *Tar) Rewind() error {
	return t.reopen()
}

func (t *Tar) Next() (uint32, error) {
	if !t.open {
		return 0, io.EOF
	}
	for {
		hdr, err := t.tr.Next()
		if err != nil {
			return 0, err
		}
		if hdr.Typeflag == tar.TypeReg {
			id := t.nextID
			t.nextID++
			return id, nil
		}
	}
}

func (t *Tar) Read(p []byte) (int, error) {
	if !t.open {
		return 0, ErrNoPayload
	}
	return t.tr.Read(p)
}

func (t *Tar) Close() error {
	var err error
	if t.dec != nil {
		err = t.dec.Close()
		t.dec = nil
	}
	if t.f != nil {
		if cerr := t.f.Close(); err == nil {
			err = cerr
		}
		t.f = nil
	}
	t.open = false
	return err
}
