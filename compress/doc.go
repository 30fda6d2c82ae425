// Package compress provides the block and stream codecs used to build and read
// SquashFS images.
//
// Every codec implements Compressor. The block transform (Compress and
// Decompress) is what the image writer applies to data blocks, fragment blocks
// and metadata blocks; it reports "no gain" by returning zero so the caller can
// store the input raw. The stream side (NewWriter and NewReader) is used by the
// entry sources to unwrap compressed tar archives.
//
// Supported codecs and their SquashFS compressor ids:
//   - gzip (1): zlib framed deflate at maximum compression
//   - lz4 (5): raw LZ4 blocks, with the 8 byte compressor options record
//   - zstd (6): zstandard frames
//
// Codecs are looked up by name with ByName or by on-disk id with ByID.
package compress
