package config

import (
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/docker/go-units"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config holds build settings as read from a TOML file. Sizes accept unit
// suffixes ("128K", "1MiB"); the mode is octal.
type Config struct {
	BlockSize    string `toml:"block_size"`
	DevBlockSize string `toml:"dev_block_size"`
	Compressor   string `toml:"compressor"`
	Timestamp    int64  `toml:"timestamp"`
	DefaultUID   uint32 `toml:"default_uid"`
	DefaultGID   uint32 `toml:"default_gid"`
	DefaultMode  string `toml:"default_mode"`
	TempDir      string `toml:"temp_dir"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		BlockSize:    "128K",
		DevBlockSize: "4K",
		Compressor:   compress.Default,
		DefaultMode:  "0755",
	}
}

// Load reads a TOML file on top of the defaults. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// Parse decodes TOML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores defaults for keys set to empty strings.
func (c *Config) fillDefaults() {
	def := Default()
	if c.BlockSize == "" {
		c.BlockSize = def.BlockSize
	}
	if c.DevBlockSize == "" {
		c.DevBlockSize = def.DevBlockSize
	}
	if c.Compressor == "" {
		c.Compressor = def.Compressor
	}
	if c.DefaultMode == "" {
		c.DefaultMode = def.DefaultMode
	}
}

// Options converts the settings into build options, validating each one.
func (c *Config) Options() ([]sqfs.Option, error) {
	blockSize, err := ParseSize(c.BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "block_size")
	}
	devBlockSize, err := ParseSize(c.DevBlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "dev_block_size")
	}
	comp, err := compress.ByName(c.Compressor)
	if err != nil {
		return nil, errors.Wrap(err, "compressor")
	}
	mode, err := ParseMode(c.DefaultMode)
	if err != nil {
		return nil, errors.Wrap(err, "default_mode")
	}

	return []sqfs.Option{
		sqfs.WithBlockSize(blockSize),
		sqfs.WithDevBlockSize(devBlockSize),
		sqfs.WithCompressor(comp),
		sqfs.WithTimestamp(c.Timestamp),
		sqfs.WithRootAttrs(c.DefaultUID, c.DefaultGID, mode),
		sqfs.WithTempDir(c.TempDir),
	}, nil
}

// ParseSize parses a byte count with an optional binary unit suffix.
func ParseSize(s string) (uint32, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidSize, "%q: %v", s, err)
	}
	if n <= 0 || n > math.MaxUint32 {
		return 0, errors.Wrapf(ErrInvalidSize, "%q out of range", s)
	}
	return uint32(n), nil
}

// ParseMode parses octal permission bits, including setuid, setgid and
// sticky.
func ParseMode(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil || v > 0o7777 {
		return 0, errors.Wrapf(ErrInvalidMode, "%q", s)
	}
	mode := fs.FileMode(v & 0o777)
	if v&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if v&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if v&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode, nil
}
