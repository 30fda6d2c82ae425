// Package util provides small helpers shared by the pkg2sqfs commands.
//
// Key Components:
//
// Hashing:
//   - SHA-256 digests of files and streams, printed after a build so images
//     can be compared
//
// Bucketing:
//   - Stable assignment of names to a fixed number of buckets using a color
//     hash, used to spread generated files over directories
package util
