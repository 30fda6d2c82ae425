package sqfs

import "github.com/pkg/errors"

// Sentinel errors for package sqfs.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Structural errors in the entry list
	ErrInvalidPath     = errors.New("invalid path")
	ErrAncestorMissing = errors.New("ancestor does not exist")
	ErrNotDirectory    = errors.New("ancestor is not a directory")
	ErrExists          = errors.New("already exists")
	ErrUnsupportedType = errors.New("unsupported file type")

	// Capacity errors
	ErrTooManyInodes = errors.New("too many inodes")
	ErrTooManyIDs    = errors.New("too many unique uids/gids")
	ErrFieldOverflow = errors.New("value does not fit on-disk field")
	ErrNameTooLong   = errors.New("name too long")
	ErrBlockSize     = errors.New("invalid block size")
	ErrTimestamp     = errors.New("timestamp out of range")

	// I/O errors
	ErrTruncated        = errors.New("truncated payload")
	ErrShortWrite       = errors.New("short write")
	ErrUnknownPayload   = errors.New("payload for unknown file")
	ErrDuplicatePayload = errors.New("duplicate payload")

	// Compression errors
	ErrCompression = errors.New("compression failed")

	// Image reader errors
	ErrBadMagic = errors.New("not a squashfs 4.0 image")
	ErrCorrupt  = errors.New("corrupt image")
	ErrNotFound = errors.New("no such file or directory")
)

func compressionError(err error, what string) error {
	return errors.Wrapf(ErrCompression, "%s: %v", what, err)
}

func corrupt(format string, args ...any) error {
	return errors.Wrapf(ErrCorrupt, format, args...)
}
