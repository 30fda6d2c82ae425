package sqfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/pkg/errors"
)

// Superblock is the 96 byte image header. Field order matches the on-disk
// layout.
type Superblock struct {
	Magic              uint32
	InodeCount         uint32
	ModTime            uint32
	BlockSize          uint32
	FragmentCount      uint32
	Compressor         compress.ID
	BlockLog           uint16
	Flags              Flags
	IDCount            uint16
	VersionMajor       uint16
	VersionMinor       uint16
	RootInode          uint64
	BytesUsed          uint64
	IDTableStart       uint64
	XattrTableStart    uint64
	InodeTableStart    uint64
	DirTableStart      uint64
	FragmentTableStart uint64
	ExportTableStart   uint64
}

// NewSuperblock validates the layout parameters and returns a header with
// every table marked absent.
func NewSuperblock(blockSize uint32, mtime int64, comp compress.ID) (*Superblock, error) {
	if err := checkBlockSize(blockSize); err != nil {
		return nil, err
	}
	if mtime < 0 || mtime > 0xFFFFFFFF {
		return nil, errors.Wrapf(ErrTimestamp, "%d", mtime)
	}
	return &Superblock{
		Magic:              Magic,
		ModTime:            uint32(mtime),
		BlockSize:          blockSize,
		Compressor:         comp,
		BlockLog:           uint16(bits.TrailingZeros32(blockSize)),
		Flags:              FlagNoFragments | FlagNoXattrs,
		VersionMajor:       VersionMajor,
		VersionMinor:       VersionMinor,
		BytesUsed:          SuperblockSize,
		IDTableStart:       absent,
		XattrTableStart:    absent,
		InodeTableStart:    absent,
		DirTableStart:      absent,
		FragmentTableStart: absent,
		ExportTableStart:   absent,
	}, nil
}

func checkBlockSize(bs uint32) error {
	switch {
	case bs&(bs-1) != 0:
		return errors.Wrapf(ErrBlockSize, "%d is not a power of two", bs)
	case bs < MinBlockSize || bs >= MaxBlockSize:
		return errors.Wrapf(ErrBlockSize, "%d outside [%d, %d)", bs, MinBlockSize, MaxBlockSize)
	}
	return nil
}

func (s *Superblock) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SuperblockSize)
	if err := binary.Write(&buf, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Superblock) UnmarshalBinary(b []byte) error {
	if len(b) < SuperblockSize {
		return errors.Wrapf(ErrBadMagic, "header is %d bytes", len(b))
	}
	return binary.Read(bytes.NewReader(b[:SuperblockSize]), binary.LittleEndian, s)
}

// WriteAt writes the header at off and restores the previous position.
func (s *Superblock) WriteAt(ws io.WriteSeeker, off int64) error {
	b, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	cur, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "superblock: seek")
	}
	if _, err := ws.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "superblock: seek")
	}
	if err := writeFull(ws, b); err != nil {
		return errors.Wrap(err, "superblock: write")
	}
	if _, err := ws.Seek(cur, io.SeekStart); err != nil {
		return errors.Wrap(err, "superblock: seek")
	}
	return nil
}

func (s *Superblock) HasFragments() bool {
	return s.Flags&FlagNoFragments == 0 && s.FragmentTableStart != absent
}

// Validate checks the fields a reader depends on.
func (s *Superblock) Validate() error {
	if s.Magic != Magic || s.VersionMajor != VersionMajor || s.VersionMinor != VersionMinor {
		return errors.Wrapf(ErrBadMagic, "magic %#x version %d.%d", s.Magic, s.VersionMajor, s.VersionMinor)
	}
	if err := checkBlockSize(s.BlockSize); err != nil {
		return corrupt("%v", err)
	}
	if uint32(1)<<s.BlockLog != s.BlockSize {
		return corrupt("block log %d does not match block size %d", s.BlockLog, s.BlockSize)
	}
	return nil
}
