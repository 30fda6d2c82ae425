package sqfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

func TestNewSuperblock(t *testing.T) {
	s, err := NewSuperblock(4096, 1700000000, compress.Gzip)
	assert.NilError(t, err)
	assert.Equal(t, s.BlockLog, uint16(12))
	assert.Equal(t, s.Flags, FlagNoFragments|FlagNoXattrs)
	assert.Equal(t, s.BytesUsed, uint64(SuperblockSize))
	assert.Equal(t, s.FragmentTableStart, absent)

	b, err := s.MarshalBinary()
	assert.NilError(t, err)
	assert.Equal(t, len(b), SuperblockSize)
	assert.Equal(t, string(b[:4]), "hsqs")

	var back Superblock
	assert.NilError(t, back.UnmarshalBinary(b))
	if diff := cmp.Diff(*s, back); diff != "" {
		t.Errorf("superblock round trip (-want +got):\n%s", diff)
	}
	assert.NilError(t, back.Validate())
}

func TestSuperblockRejects(t *testing.T) {
	tests := []struct {
		name      string
		blockSize uint32
		mtime     int64
		want      error
	}{
		{"not a power of two", 5000, 0, ErrBlockSize},
		{"too small", 2048, 0, ErrBlockSize},
		{"too large", 1 << 24, 0, ErrBlockSize},
		{"negative time", 4096, -1, ErrTimestamp},
		{"time past 2106", 4096, 1 << 32, ErrTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSuperblock(tt.blockSize, tt.mtime, compress.Gzip)
			assert.Check(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSuperblockValidate(t *testing.T) {
	s, err := NewSuperblock(DefaultBlockSize, 0, compress.Zstd)
	assert.NilError(t, err)

	bad := *s
	bad.Magic = 0x12345678
	assert.Check(t, errors.Is(bad.Validate(), ErrBadMagic))

	bad = *s
	bad.VersionMajor = 3
	assert.Check(t, errors.Is(bad.Validate(), ErrBadMagic))

	bad = *s
	bad.BlockLog = 12
	assert.Check(t, errors.Is(bad.Validate(), ErrCorrupt))
}

func TestSuperblockWriteAt(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "img"))
	assert.NilError(t, err)
	defer f.Close()

	_, err = f.Write(make([]byte, 200))
	assert.NilError(t, err)

	s, err := NewSuperblock(4096, 0, compress.Gzip)
	assert.NilError(t, err)
	assert.NilError(t, s.WriteAt(f, 0))

	pos, err := f.Seek(0, io.SeekCurrent)
	assert.NilError(t, err)
	assert.Equal(t, pos, int64(200))

	hdr := make([]byte, SuperblockSize)
	_, err = f.ReadAt(hdr, 0)
	assert.NilError(t, err)
	var back Superblock
	assert.NilError(t, back.UnmarshalBinary(hdr))
	assert.Equal(t, back, *s)
}
