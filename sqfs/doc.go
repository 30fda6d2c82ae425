// Package sqfs builds and reads SquashFS 4.0 images.
//
// Build turns a source.Package (a flat entry list plus a stream of file
// payloads) into a complete image in one forward pass. The only backward seek
// rewrites the superblock once every table location is known.
//
// Image layout, in write order:
//   - Superblock (96 bytes, rewritten at the end)
//   - Compressor options, when the codec has any
//   - Data blocks and fragment blocks, in payload stream order
//   - Inode table
//   - Directory table (spooled to a temp file while inodes are written)
//   - Fragment table and its index, when any fragment was written
//   - Id table and its index
//   - Zero padding up to the device block size
//
// Key Components:
//   - Tree: the directory hierarchy with post-order inode numbering
//   - IDTable: uid/gid interning into 16 bit indices
//   - MetaWriter: 8 KiB metadata block packing with block references
//   - Superblock: the image header
//   - Image: a read-only view used for listing, verification and mounting
//
// Inode numbers start at 2. Within every directory the subdirectories are
// numbered first, depth first, then the directory's direct children in name
// order; the root gets the highest number. Every inode records the same
// modification time.
//
// Not supported: extended attributes, hard links, sparse files, export
// tables and duplicate detection.
package sqfs
