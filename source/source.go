package source

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sentinel errors for package source.
var (
	ErrUnknownFormat = errors.New("unrecognized source format")
	ErrNoPayload     = errors.New("no current payload")
)

// Entry is one filesystem object as listed by a source. Paths are relative to
// the image root and use forward slashes.
type Entry struct {
	Path   string
	Mode   fs.FileMode
	UID    uint32
	GID    uint32
	Size   uint64 // regular files only
	Target string // symlinks only
	Major  uint32 // devices only
	Minor  uint32
	ID     uint32 // regular files only; matches the id returned by Next
}

// Package is a flat entry list plus a sequential stream of file payloads.
type Package interface {
	// Entries returns every entry in source order.
	Entries() ([]Entry, error)
	// Rewind restarts the payload stream.
	Rewind() error
	// Next advances to the next payload and returns its file id, or io.EOF.
	Next() (uint32, error)
	// Read reads from the current payload.
	Read(p []byte) (int, error)
	Close() error
}

// Stats summarizes the entries of a package.
type Stats struct {
	Dirs, Files, Symlinks, Devices, Other int
	Bytes                                 uint64
}

func (s Stats) Total() int {
	return s.Dirs + s.Files + s.Symlinks + s.Devices + s.Other
}

// Count tallies entries by type.
func Count(pkg Package) (Stats, error) {
	entries, err := pkg.Entries()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, e := range entries {
		switch t := e.Mode.Type(); {
		case t == fs.ModeDir:
			st.Dirs++
		case t == 0:
			st.Files++
			st.Bytes += e.Size
		case t == fs.ModeSymlink:
			st.Symlinks++
		case t&fs.ModeDevice != 0:
			st.Devices++
		default:
			st.Other++
		}
	}
	return st, nil
}

// Payloads drains the payload stream and reports the bytes read per file id.
func Payloads(pkg Package) (map[uint32]uint64, error) {
	if err := pkg.Rewind(); err != nil {
		return nil, err
	}
	sizes := make(map[uint32]uint64)
	for {
		id, err := pkg.Next()
		if err == io.EOF {
			return sizes, nil
		}
		if err != nil {
			return nil, err
		}
		n, err := io.Copy(io.Discard, pkg)
		if err != nil {
			return nil, errors.Wrapf(err, "payload %d", id)
		}
		sizes[id] = uint64(n)
	}
}

// Open picks a source implementation for path: a directory, a zip archive or
// a tar archive (plain or compressed). A nil logger uses the standard logger.
func Open(path string, log *logrus.Entry) (Package, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		d, err := NewDir(path, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		z, err := OpenZip(path, log)
		if err != nil {
			return nil, err
		}
		return z, nil
	}
	t, err := OpenTar(path, log)
	if errors.Is(err, tar.ErrHeader) {
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
