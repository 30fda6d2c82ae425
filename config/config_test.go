package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg2sqfs.toml")
	err := os.WriteFile(path, []byte(`
block_size = "64K"
compressor = "zstd"
timestamp = 1700000000
default_uid = 1000
default_mode = "0700"
`), 0o644)
	assert.NilError(t, err)

	cfg, err := Load(path)
	assert.NilError(t, err)

	want := &Config{
		BlockSize:    "64K",
		DevBlockSize: "4K",
		Compressor:   "zstd",
		Timestamp:    1700000000,
		DefaultUID:   1000,
		DefaultMode:  "0700",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}

	opts, err := cfg.Options()
	assert.NilError(t, err)
	assert.Assert(t, is.Len(opts, 6))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg, Default())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Check(t, errors.Is(err, os.ErrNotExist))

	_, err = Parse([]byte("block_size = ["))
	assert.ErrorContains(t, err, "parsing config")
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "4096", want: 4096},
		{in: "4K", want: 4096},
		{in: "128k", want: 128 * 1024},
		{in: " 1MiB ", want: 1 << 20},
		{in: "8M", want: 8 << 20},
		{in: "", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "0", wantErr: true},
		{in: "8G", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Check(t, errors.Is(err, ErrInvalidSize))
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    fs.FileMode
		wantErr bool
	}{
		{in: "0755", want: 0o755},
		{in: "700", want: 0o700},
		{in: "1777", want: fs.ModeSticky | 0o777},
		{in: "4755", want: fs.ModeSetuid | 0o755},
		{in: "2750", want: fs.ModeSetgid | 0o750},
		{in: "0888", wantErr: true},
		{in: "17777", wantErr: true},
		{in: "rwx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Check(t, errors.Is(err, ErrInvalidMode))
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}
}

func TestOptionsRejectBadValues(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *Config)
		want error
	}{
		{"block size", func(c *Config) { c.BlockSize = "nope" }, ErrInvalidSize},
		{"device block size", func(c *Config) { c.DevBlockSize = "" }, ErrInvalidSize},
		{"compressor", func(c *Config) { c.Compressor = "lzo" }, compress.ErrUnknownCompressor},
		{"mode", func(c *Config) { c.DefaultMode = "9" }, ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			_, err := cfg.Options()
			assert.Check(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOptionsValidatedByBuilder(t *testing.T) {
	cfg := Default()
	cfg.BlockSize = "3K"
	opts, err := cfg.Options()
	assert.NilError(t, err)

	f, err := os.Create(filepath.Join(t.TempDir(), "image.sqfs"))
	assert.NilError(t, err)
	defer f.Close()
	_, err = sqfs.Build(f, nil, opts...)
	assert.Check(t, errors.Is(err, sqfs.ErrBlockSize), "got %v", err)
}
