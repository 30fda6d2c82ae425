package source

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Dir reads entries from a directory on the host. The directory itself maps
// to the image root and is not listed.
type Dir struct {
	root    string
	log     *logrus.Entry
	entries []Entry
	files   []string
	pos     int
	cur     *os.File
}

func NewDir(root string, log *logrus.Entry) (*Dir, error) {
	d := &Dir{root: root, log: log, pos: -1}
	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := de.Info()
		if err != nil {
			return err
		}

		e := Entry{Path: filepath.ToSlash(rel), Mode: info.Mode()}
		e.UID, e.GID, e.Major, e.Minor = statOwner(info)

		switch t := info.Mode().Type(); {
		case t == 0:
			e.ID = uint32(len(d.files))
			e.Size = uint64(info.Size())
			d.files = append(d.files, path)
		case t == fs.ModeSymlink:
			if e.Target, err = os.Readlink(path); err != nil {
				return err
			}
		case t&fs.ModeIrregular != 0:
			d.log.WithField("path", rel).Warn("skipping irregular file")
			return nil
		}
		d.entries = append(d.entries, e)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", root)
	}
	return d, nil
}

func (d *Dir) Entries() ([]Entry, error) {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out, nil
}

func (d *Dir) Rewind() error {
	d.pos = -1
	return d.closeCurrent()
}

func (d *Dir) Next() (uint32, error) {
	if err := d.closeCurrent(); err != nil {
		return 0, err
	}
	if d.pos+1 >= len(d.files) {
		d.pos = len(d.files)
		return 0, io.EOF
	}
	d.pos++
	f, err := os.Open(d.files[d.pos])
	if err != nil {
		return 0, err
	}
	d.cur = f
	return uint32(d.pos), nil
}

func (d *Dir) Read(p []byte) (int, error) {
	if d.cur == nil {
		return 0, ErrNoPayload
	}
	return d.cur.Read(p)
}

func (d *Dir) Close() error {
	return d.closeCurrent()
}

func (d *Dir) closeCurrent() error {
	if d.cur == nil {
		return nil
	}
	err := d.cur.Close()
	d.cur = nil
	return err
}
