// Package main provides the pkg2sqfs command-line interface.
//
// pkg2sqfs builds SquashFS 4.0 images from package trees: directories, tar
// archives (plain or compressed) and zip archives. Output is deterministic,
// so building the same source twice gives byte-identical images.
//
// The binary supports multiple subcommands:
//   - build: Pack a source into an image
//   - ls: List the contents of an image
//   - inspect: Show the superblock and verify an image
//   - mount: Serve an image read-only over FUSE
//   - count: Count the entries of a source
//   - seed: Generate a source tree for test builds
package main
