package sqfs

import (
	"io/fs"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

func TestIDTable(t *testing.T) {
	var ids IDTable
	for _, tc := range []struct {
		id   uint32
		want uint16
	}{
		{0, 0},
		{1000, 1},
		{0, 0},
		{42, 2},
		{1000, 1},
	} {
		got, err := ids.Index(tc.id)
		assert.NilError(t, err)
		assert.Equal(t, got, tc.want, "id %d", tc.id)
	}
	assert.Equal(t, ids.Len(), 3)

	id, ok := ids.ID(2)
	assert.Assert(t, ok)
	assert.Equal(t, id, uint32(42))
	_, ok = ids.ID(3)
	assert.Assert(t, !ok)
}

func TestIDTableLimit(t *testing.T) {
	var ids IDTable
	for i := 0; i < MaxIDs; i++ {
		_, err := ids.Index(uint32(i))
		assert.NilError(t, err)
	}
	_, err := ids.Index(MaxIDs)
	assert.Check(t, errors.Is(err, ErrTooManyIDs))

	// Known ids still resolve when the table is full.
	got, err := ids.Index(7)
	assert.NilError(t, err)
	assert.Equal(t, got, uint16(7))
}

func TestUnixMode(t *testing.T) {
	tests := []struct {
		name string
		mode fs.FileMode
		want uint16
	}{
		{"file", 0o644, 0o100644},
		{"dir", fs.ModeDir | 0o755, 0o040755},
		{"symlink", fs.ModeSymlink | 0o777, 0o120777},
		{"block device", fs.ModeDevice | 0o660, 0o060660},
		{"char device", fs.ModeDevice | fs.ModeCharDevice | 0o666, 0o020666},
		{"fifo", fs.ModeNamedPipe | 0o600, 0o010600},
		{"socket", fs.ModeSocket | 0o755, 0o140755},
		{"setuid", fs.ModeSetuid | 0o755, 0o104755},
		{"sticky dir", fs.ModeDir | fs.ModeSticky | 0o777, 0o041777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnixMode(tt.mode)
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
			assert.Equal(t, FileMode(got), tt.mode)
		})
	}

	_, err := UnixMode(fs.ModeIrregular)
	assert.Check(t, errors.Is(err, ErrUnsupportedType))
}

func TestDevNumbers(t *testing.T) {
	tests := []struct {
		major, minor uint32
		want         uint32
	}{
		{8, 1, 0x801},
		{1, 3, 0x103},
		{1, 300, 44 | 1<<8 | 256<<12},
	}
	for _, tt := range tests {
		dev := EncodeDev(tt.major, tt.minor)
		assert.Equal(t, dev, tt.want)
		major, minor := DecodeDev(dev)
		assert.Equal(t, major, tt.major)
		assert.Equal(t, minor, tt.minor)
	}
}

func TestInodeTypeBasic(t *testing.T) {
	assert.Equal(t, InodeExtDir.Basic(), InodeDir)
	assert.Equal(t, InodeExtFile.Basic(), InodeFile)
	assert.Equal(t, InodeExtSocket.Basic(), InodeSocket)
	assert.Equal(t, InodeSymlink.Basic(), InodeSymlink)
	assert.Equal(t, InodeExtCharDev.String(), "chardev")
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, Flags(0).String(), "none")
	assert.Equal(t, (FlagNoFragments | FlagNoXattrs).String(), "no-fragments,no-xattrs")
	assert.Equal(t, (FlagUncompressedData | FlagAlwaysFragments).String(), "uncompressed-data,always-fragments")
}
