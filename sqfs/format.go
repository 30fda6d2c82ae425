package sqfs

import (
	"io/fs"
	"strings"
)

const (
	Magic        uint32 = 0x73717368
	VersionMajor uint16 = 4
	VersionMinor uint16 = 0

	SuperblockSize = 96
	MetaBlockSize  = 8192

	DefaultBlockSize    = 128 * 1024
	DefaultDevBlockSize = 4096
	MinBlockSize        = 4096
	MaxBlockSize        = 1 << 24 // exclusive; bit 24 of a size word is the stored flag

	MaxDirEntries = 256
	MaxNameLen    = 256
	MaxIDs        = 0xFFFF

	metaStored  = 0x8000
	blockStored = 1 << 24

	absent     = ^uint64(0)
	noFragment = ^uint32(0)
	noXattr    = ^uint32(0)
	rootParent = 1

	fragmentEntrySize = 16
	dirHeaderSize     = 12
	dirEntrySize      = 8
)

// InodeType is the on-disk inode record type.
type InodeType uint16

const (
	InodeDir InodeType = iota + 1
	InodeFile
	InodeSymlink
	InodeBlockDev
	InodeCharDev
	InodeFifo
	InodeSocket
	InodeExtDir
	InodeExtFile
	InodeExtSymlink
	InodeExtBlockDev
	InodeExtCharDev
	InodeExtFifo
	InodeExtSocket
)

// Basic maps an extended type to its basic counterpart. Directory entries
// always carry the basic type.
func (t InodeType) Basic() InodeType {
	if t >= InodeExtDir {
		return t - (InodeExtDir - InodeDir)
	}
	return t
}

func (t InodeType) String() string {
	switch t.Basic() {
	case InodeDir:
		return "dir"
	case InodeFile:
		return "file"
	case InodeSymlink:
		return "symlink"
	case InodeBlockDev:
		return "blockdev"
	case InodeCharDev:
		return "chardev"
	case InodeFifo:
		return "fifo"
	case InodeSocket:
		return "socket"
	}
	return "unknown"
}

// Flags are the superblock feature flags.
type Flags uint16

const (
	FlagUncompressedInodes Flags = 1 << iota
	FlagUncompressedData
	FlagCheck
	FlagUncompressedFragments
	FlagNoFragments
	FlagAlwaysFragments
	FlagDuplicates
	FlagExportable
	FlagUncompressedXattrs
	FlagNoXattrs
	FlagCompressorOptions
	FlagUncompressedIDs
)

var flagNames = []string{
	"uncompressed-inodes",
	"uncompressed-data",
	"check",
	"uncompressed-fragments",
	"no-fragments",
	"always-fragments",
	"duplicates",
	"exportable",
	"uncompressed-xattrs",
	"no-xattrs",
	"compressor-options",
	"uncompressed-ids",
}

// String lists the set flags separated by commas.
func (f Flags) String() string {
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Unix mode bits as stored in inode records.
const (
	sIFMT   = 0o170000
	sIFSOCK = 0o140000
	sIFLNK  = 0o120000
	sIFREG  = 0o100000
	sIFBLK  = 0o060000
	sIFDIR  = 0o040000
	sIFCHR  = 0o020000
	sIFIFO  = 0o010000
	sISUID  = 0o4000
	sISGID  = 0o2000
	sISVTX  = 0o1000
)

// UnixMode converts a Go file mode to the 16 bit unix mode stored on disk.
func UnixMode(m fs.FileMode) (uint16, error) {
	mode := uint16(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= sISUID
	}
	if m&fs.ModeSetgid != 0 {
		mode |= sISGID
	}
	if m&fs.ModeSticky != 0 {
		mode |= sISVTX
	}
	switch m.Type() {
	case 0:
		mode |= sIFREG
	case fs.ModeDir:
		mode |= sIFDIR
	case fs.ModeSymlink:
		mode |= sIFLNK
	case fs.ModeDevice:
		mode |= sIFBLK
	case fs.ModeDevice | fs.ModeCharDevice:
		mode |= sIFCHR
	case fs.ModeNamedPipe:
		mode |= sIFIFO
	case fs.ModeSocket:
		mode |= sIFSOCK
	default:
		return 0, ErrUnsupportedType
	}
	return mode, nil
}

// FileMode converts an on-disk unix mode back to a Go file mode.
func FileMode(mode uint16) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	if mode&sISUID != 0 {
		m |= fs.ModeSetuid
	}
	if mode&sISGID != 0 {
		m |= fs.ModeSetgid
	}
	if mode&sISVTX != 0 {
		m |= fs.ModeSticky
	}
	switch mode & sIFMT {
	case sIFDIR:
		m |= fs.ModeDir
	case sIFLNK:
		m |= fs.ModeSymlink
	case sIFBLK:
		m |= fs.ModeDevice
	case sIFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case sIFIFO:
		m |= fs.ModeNamedPipe
	case sIFSOCK:
		m |= fs.ModeSocket
	}
	return m
}

// Largest device numbers EncodeDev can represent.
const (
	MaxDevMajor = 0xfff
	MaxDevMinor = 0xfffff
)

// EncodeDev packs a device number the way the kernel's new_encode_dev does.
func EncodeDev(major, minor uint32) uint32 {
	return minor&0xff | (major&0xfff)<<8 | (minor&^0xff)<<12
}

// DecodeDev reverses EncodeDev.
func DecodeDev(dev uint32) (major, minor uint32) {
	return (dev >> 8) & 0xfff, dev&0xff | (dev>>12)&0xfff00
}
