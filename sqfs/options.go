package sqfs

import (
	"io/fs"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Option configures a build.
type Option func(*options) error

type options struct {
	blockSize    uint32
	devBlockSize uint32
	comp         compress.Compressor
	timestamp    int64
	root         RootAttrs
	tempDir      string
	log          *logrus.Entry
}

func defaultOptions() *options {
	return &options{
		blockSize:    DefaultBlockSize,
		devBlockSize: DefaultDevBlockSize,
		comp:         compress.NewGzip(),
		root:         DefaultRootAttrs,
		log:          logrus.NewEntry(logrus.StandardLogger()),
	}
}

// WithBlockSize sets the data block size. It must be a power of two in
// [4 KiB, 16 MiB).
func WithBlockSize(n uint32) Option {
	return func(o *options) error {
		if err := checkBlockSize(n); err != nil {
			return err
		}
		o.blockSize = n
		return nil
	}
}

// WithDevBlockSize sets the size the finished image is padded to.
func WithDevBlockSize(n uint32) Option {
	return func(o *options) error {
		if n < DefaultDevBlockSize {
			return errors.Wrapf(ErrBlockSize, "device block size %d below %d", n, DefaultDevBlockSize)
		}
		o.devBlockSize = n
		return nil
	}
}

func WithCompressor(c compress.Compressor) Option {
	return func(o *options) error {
		if c == nil {
			return errors.Wrap(compress.ErrUnknownCompressor, "nil compressor")
		}
		o.comp = c
		return nil
	}
}

// WithTimestamp sets the modification time of every inode, in seconds since
// the epoch.
func WithTimestamp(ts int64) Option {
	return func(o *options) error {
		if ts < 0 || ts > 0xFFFFFFFF {
			return errors.Wrapf(ErrTimestamp, "%d", ts)
		}
		o.timestamp = ts
		return nil
	}
}

// WithRootAttrs sets the owner and permissions of the synthesized root.
func WithRootAttrs(uid, gid uint32, perm fs.FileMode) Option {
	return func(o *options) error {
		o.root = RootAttrs{UID: uid, GID: gid, Perm: perm}
		return nil
	}
}

// WithTempDir sets where the directory table is spooled during a build.
func WithTempDir(dir string) Option {
	return func(o *options) error {
		o.tempDir = dir
		return nil
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *options) error {
		if l != nil {
			o.log = l
		}
		return nil
	}
}
