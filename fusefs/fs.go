package fusefs

import (
	"context"
	"io"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FS serves a squashfs image read-only over FUSE
type FS struct {
	img *sqfs.Image
	log *logrus.Entry
}

// New creates a filesystem backed by img
func New(img *sqfs.Image, log *logrus.Entry) *FS {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FS{img: img, log: log}
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	ino, err := f.img.Root()
	if err != nil {
		f.log.WithError(err).Error("reading root inode")
		return nil, syscall.EIO
	}
	return f.node(ino), nil
}

// Statfs reports the image as a full, read-only filesystem
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	s := f.img.Super
	resp.Bsize = s.BlockSize
	resp.Frsize = s.BlockSize
	resp.Blocks = (s.BytesUsed + uint64(s.BlockSize) - 1) / uint64(s.BlockSize)
	resp.Files = uint64(s.InodeCount)
	resp.Namelen = sqfs.MaxNameLen
	return nil
}

func (f *FS) node(ino *sqfs.Inode) fs.Node {
	n := node{fs: f, ino: ino}
	switch ino.Type.Basic() {
	case sqfs.InodeDir:
		return &Dir{n}
	case sqfs.InodeFile:
		return &File{n}
	case sqfs.InodeSymlink:
		return &Symlink{n}
	}
	return &Special{n}
}

// errno maps image errors to what the kernel expects. Anything other than a
// missing name means the image is damaged and is logged.
func (f *FS) errno(err error, msg string, ino *sqfs.Inode) error {
	switch {
	case errors.Is(err, sqfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, sqfs.ErrNotDirectory):
		return syscall.ENOTDIR
	}
	f.log.WithError(err).WithField("inode", ino.Number).Error(msg)
	return syscall.EIO
}

// node holds the attributes shared by every kind of inode
type node struct {
	fs  *FS
	ino *sqfs.Inode
}

// Attr returns the inode's attributes
func (n *node) Attr(ctx context.Context, a *fuse.Attr) error {
	mtime := time.Unix(int64(n.ino.ModTime), 0)
	a.Inode = uint64(n.ino.Number)
	a.Mode = n.ino.FileMode()
	a.Size = n.ino.Size
	a.Blocks = (n.ino.Size + 511) / 512
	a.Nlink = n.ino.Nlink
	a.Uid = n.ino.UID
	a.Gid = n.ino.GID
	a.Rdev = n.ino.Devno
	a.BlockSize = n.fs.img.Super.BlockSize
	a.Mtime = mtime
	a.Ctime = mtime
	a.Atime = mtime
	return nil
}

// Dir implements both Node and Handle for directories
type Dir struct {
	node
}

// Lookup resolves a name inside the directory
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	ino, err := d.fs.img.LookupIn(d.ino, name)
	if err != nil {
		return nil, d.fs.errno(err, "lookup "+name, d.ino)
	}
	return d.fs.node(ino), nil
}

// ReadDirAll lists directory contents in on-disk order
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.img.ReadDir(d.ino)
	if err != nil {
		return nil, d.fs.errno(err, "reading directory", d.ino)
	}
	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		dirents = append(dirents, fuse.Dirent{
			Inode: uint64(e.Inode),
			Name:  e.Name,
			Type:  direntType(e.Type),
		})
	}
	return dirents, nil
}

func direntType(t sqfs.InodeType) fuse.DirentType {
	switch t.Basic() {
	case sqfs.InodeDir:
		return fuse.DT_Dir
	case sqfs.InodeFile:
		return fuse.DT_File
	case sqfs.InodeSymlink:
		return fuse.DT_Link
	case sqfs.InodeBlockDev:
		return fuse.DT_Block
	case sqfs.InodeCharDev:
		return fuse.DT_Char
	case sqfs.InodeFifo:
		return fuse.DT_FIFO
	case sqfs.InodeSocket:
		return fuse.DT_Socket
	}
	return fuse.DT_Unknown
}

// File implements both Node and Handle for regular files
type File struct {
	node
}

// Open rejects any attempt to write
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		return nil, syscall.EROFS
	}
	resp.Flags |= fuse.OpenKeepCache
	return f, nil
}

// Read serves a byte range of the file
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := f.fs.img.ReadFileAt(f.ino, buf, req.Offset)
	if err != nil && err != io.EOF {
		return f.fs.errno(err, "reading file", f.ino)
	}
	resp.Data = buf[:n]
	return nil
}

// Symlink is a symbolic link node
type Symlink struct {
	node
}

// Readlink returns the stored target
func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	return s.ino.Target, nil
}

// Special covers devices, fifos and sockets, which carry only attributes
type Special struct {
	node
}

var (
	_ fs.FS                 = (*FS)(nil)
	_ fs.FSStatfser         = (*FS)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeOpener         = (*File)(nil)
	_ fs.HandleReader       = (*File)(nil)
	_ fs.NodeReadlinker     = (*Symlink)(nil)
	_ fs.Node               = (*Special)(nil)
)

// Mount mounts img read-only at mountpoint and serves it until the
// filesystem is unmounted or ctx is cancelled.
func Mount(ctx context.Context, img *sqfs.Image, mountpoint string, log *logrus.Entry) error {
	filesystem := New(img, log)
	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("pkg2sqfs"),
		fuse.Subtype("pkg2sqfs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return errors.Wrapf(err, "mounting %s", mountpoint)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() {
		filesystem.log.WithField("mountpoint", mountpoint).Info("unmounting")
		if err := fuse.Unmount(mountpoint); err != nil {
			filesystem.log.WithError(err).Warn("unmount failed")
		}
	})
	defer stop()

	filesystem.log.WithField("mountpoint", mountpoint).Info("serving image")
	if err := fs.Serve(c, filesystem); err != nil {
		return errors.Wrap(err, "serving filesystem")
	}
	return nil
}
