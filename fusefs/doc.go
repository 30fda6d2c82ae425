// Package fusefs exposes a squashfs image as a read-only FUSE filesystem.
//
// Nodes map one to one onto image inodes: Dir, File, Symlink and Special
// (devices, fifos and sockets). Attributes come straight from the inode
// records, including the shared modification time, and inode numbers are the
// ones stored in the image. Directory listings are returned in on-disk order,
// which is sorted by name.
//
// Lookups and reads go through sqfs.Image, which caches metadata and data
// blocks and is safe for concurrent use, so the kernel may issue requests in
// parallel. Any attempt to open a file for writing fails with EROFS.
//
// The main entry point is Mount, which mounts the image with the
// bazil.org/fuse library and serves it until unmounted or cancelled.
package fusefs
