// Package cmd provides the command-line interface implementation for pkg2sqfs.
//
// It uses the Cobra library for command structure and Fang for styling.
// The package is organized into the following commands:
//   - root: Main command coordinator and entry point
//   - build: Pack a directory or archive into a squashfs image
//   - ls: List the contents of an image
//   - inspect: Print the superblock and verify an image
//   - mount: Serve an image read-only over FUSE
//   - count: Count the entries of a source
//   - seed: Generate a source tree for test builds
//   - version: Print build information
//
// Each command is implemented as a separate file with its own constructor
// function that returns a *cobra.Command. The work itself is done by the
// source, sqfs and fusefs packages.
package cmd
