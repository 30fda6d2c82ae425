package source

import (
	"archive/zip"
	"io"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Zip reads entries from a zip archive. Zip carries no ownership, so every
// entry is owned by 0:0. Symlink targets are stored as the entry content.
type Zip struct {
	zr      *zip.ReadCloser
	log     *logrus.Entry
	entries []Entry
	files   []*zip.File
	pos     int
	cur     io.ReadCloser
}

func OpenZip(path string, log *logrus.Entry) (*Zip, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	z := &Zip{zr: zr, log: log, pos: -1}
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, "/")
		if name == "" {
			continue
		}
		mode := f.Mode()
		e := Entry{Path: name, Mode: mode}

		switch t := mode.Type(); {
		case t == fs.ModeDir:
		case t == 0:
			e.ID = uint32(len(z.files))
			e.Size = f.UncompressedSize64
			z.files = append(z.files, f)
		case t == fs.ModeSymlink:
			target, err := readZipEntry(f)
			if err != nil {
				zr.Close()
				return nil, errors.Wrapf(err, "%s: reading link %s", path, name)
			}
			e.Target = target
		default:
			log.WithFields(logrus.Fields{"path": name, "mode": mode.String()}).
				Warn("skipping unsupported zip entry")
			continue
		}
		z.entries = append(z.entries, e)
	}
	return z, nil
}

func readZipEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return string(b), err
}

func (z *Zip) Entries() ([]Entry, error) {
	out := make([]Entry, len(z.entries))
	copy(out, z.entries)
	return out, nil
}

func (z *Zip) Rewind() error {
	z.pos = -1
	return z.closeCurrent()
}

func (z *Zip) Next() (uint32, error) {
	if err := z.closeCurrent(); err != nil {
		return 0, err
	}
	if z.pos+1 >= len(z.files) {
		z.pos = len(z.files)
		return 0, io.EOF
	}
	z.pos++
	rc, err := z.files[z.pos].Open()
	if err != nil {
		return 0, err
	}
	z.cur = rc
	return uint32(z.pos), nil
}

func (z *Zip) Read(p []byte) (int, error) {
	if z.cur == nil {
		return 0, ErrNoPayload
	}
	return z.cur.Read(p)
}

func (z *Zip) Close() error {
	err := z.closeCurrent()
	if cerr := z.zr.Close(); err == nil {
		err = cerr
	}
	return err
}

func (z *Zip) closeCurrent() error {
	if z.cur == nil {
		return nil
	}
	err := z.cur.Close()
	z.cur = nil
	return err
}
