// Package config loads build settings for pkg2sqfs from TOML files.
//
// A config file may set any of:
//
//	block_size     = "128K"   # data block size, power of two in [4K, 16M)
//	dev_block_size = "4K"     # image is padded to a multiple of this
//	compressor     = "gzip"   # gzip, lz4 or zstd
//	timestamp      = 0        # modification time of every inode
//	default_uid    = 0        # owner of the root directory
//	default_gid    = 0
//	default_mode   = "0755"   # permissions of the root directory
//	temp_dir       = ""       # where the directory table is spooled
//
// Missing keys keep their defaults. Config.Options turns the result into
// sqfs build options.
package config
