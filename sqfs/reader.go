package sqfs

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/dendrascience/pkg2sqfs/compress"
	"github.com/pkg/errors"
)

// Image is a read-only view of a finished image. It is safe for concurrent
// use.
type Image struct {
	Super Superblock

	r     io.ReaderAt
	comp  compress.Compressor
	ids   []uint32
	frags []fragmentEntry

	mu    sync.Mutex
	meta  map[uint64]metaBlock
	data  map[uint64][]byte
	cmpMu sync.Mutex
}

const dataCacheSize = 64

type metaBlock struct {
	data []byte
	next uint64
}

// Inode is a decoded inode record. Size is the file size for regular files,
// the listing size for directories and the target length for symlinks.
type Inode struct {
	Type    InodeType
	Mode    uint16
	UID     uint32
	GID     uint32
	ModTime uint32
	Number  uint32
	Nlink   uint32
	Ref     uint64
	Size    uint64

	DirBlock  uint32
	DirOffset uint16
	Parent    uint32

	BlocksStart uint64
	Fragment    uint32
	FragOffset  uint32
	BlockSizes  []uint32

	Target string
	Devno  uint32
}

func (ino *Inode) FileMode() fs.FileMode { return FileMode(ino.Mode) }
func (ino *Inode) IsDir() bool           { return ino.Type.Basic() == InodeDir }

// DirEntry is one decoded directory entry.
type DirEntry struct {
	Name  string
	Type  InodeType
	Inode uint32
	Ref   uint64
}

// Open reads the superblock and the id and fragment tables of an image.
func Open(r io.ReaderAt) (*Image, error) {
	var hdr [SuperblockSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, errors.Wrapf(ErrBadMagic, "reading superblock: %v", err)
	}
	img := &Image{
		r:    r,
		meta: make(map[uint64]metaBlock),
		data: make(map[uint64][]byte),
	}
	if err := img.Super.UnmarshalBinary(hdr[:]); err != nil {
		return nil, err
	}
	if err := img.Super.Validate(); err != nil {
		return nil, err
	}
	comp, err := compress.ByID(img.Super.Compressor)
	if err != nil {
		return nil, err
	}
	img.comp = comp

	raw, err := img.readTable(img.Super.IDTableStart, int(img.Super.IDCount)*4)
	if err != nil {
		return nil, errors.Wrap(err, "id table")
	}
	img.ids = make([]uint32, img.Super.IDCount)
	for i := range img.ids {
		img.ids[i] = le.Uint32(raw[i*4:])
	}

	if img.Super.FragmentCount > 0 {
		raw, err := img.readTable(img.Super.FragmentTableStart, int(img.Super.FragmentCount)*fragmentEntrySize)
		if err != nil {
			return nil, errors.Wrap(err, "fragment table")
		}
		img.frags = make([]fragmentEntry, img.Super.FragmentCount)
		for i := range img.frags {
			b := raw[i*fragmentEntrySize:]
			img.frags[i] = fragmentEntry{Start: le.Uint64(b[0:]), Size: le.Uint32(b[8:])}
		}
	}
	return img, nil
}

func (img *Image) IDs() []uint32 {
	return append([]uint32(nil), img.ids...)
}

func (img *Image) FragmentCount() int { return len(img.frags) }

func (img *Image) decompress(dst, src []byte) (int, error) {
	img.cmpMu.Lock()
	defer img.cmpMu.Unlock()
	n, err := img.comp.Decompress(dst, src)
	if err != nil {
		return 0, compressionError(err, "decompressing")
	}
	return n, nil
}

func (img *Image) readMetaBlock(off uint64) (metaBlock, error) {
	img.mu.Lock()
	mb, ok := img.meta[off]
	img.mu.Unlock()
	if ok {
		return mb, nil
	}

	var hdr [2]byte
	if _, err := img.r.ReadAt(hdr[:], int64(off)); err != nil {
		return metaBlock{}, corrupt("metadata block at %d: %v", off, err)
	}
	h := le.Uint16(hdr[:])
	size := int(h &^ metaStored)
	if size == 0 || size > MetaBlockSize {
		return metaBlock{}, corrupt("metadata block at %d: length %d", off, size)
	}
	raw := make([]byte, size)
	if _, err := img.r.ReadAt(raw, int64(off)+2); err != nil {
		return metaBlock{}, corrupt("metadata block at %d: %v", off, err)
	}
	data := raw
	if h&metaStored == 0 {
		buf := make([]byte, MetaBlockSize)
		n, err := img.decompress(buf, raw)
		if err != nil {
			return metaBlock{}, errors.Wrapf(err, "metadata block at %d", off)
		}
		data = buf[:n]
	}

	mb = metaBlock{data: data, next: off + 2 + uint64(size)}
	img.mu.Lock()
	img.meta[off] = mb
	img.mu.Unlock()
	return mb, nil
}

// readTable reads length bytes of a table through its block index.
func (img *Image) readTable(start uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if start == absent {
		return nil, corrupt("table is absent")
	}
	blocks := (length + MetaBlockSize - 1) / MetaBlockSize
	index := make([]byte, 8*blocks)
	if _, err := img.r.ReadAt(index, int64(start)); err != nil {
		return nil, corrupt("table index at %d: %v", start, err)
	}
	out := make([]byte, 0, length)
	for i := 0; i < blocks; i++ {
		mb, err := img.readMetaBlock(le.Uint64(index[i*8:]))
		if err != nil {
			return nil, err
		}
		out = append(out, mb.data...)
	}
	if len(out) < length {
		return nil, corrupt("table holds %d of %d bytes", len(out), length)
	}
	return out[:length], nil
}

// metaReader reads a metadata stream starting at a reference.
type metaReader struct {
	img  *Image
	data []byte
	pos  int
	next uint64
}

func (img *Image) metaReaderAt(tableStart, ref uint64) (*metaReader, error) {
	mb, err := img.readMetaBlock(tableStart + ref>>16)
	if err != nil {
		return nil, err
	}
	off := int(ref & 0xFFFF)
	if off > len(mb.data) {
		return nil, corrupt("reference %#x points past its block", ref)
	}
	return &metaReader{img: img, data: mb.data, pos: off, next: mb.next}, nil
}

func (m *metaReader) Read(p []byte) (int, error) {
	if m.pos == len(m.data) {
		mb, err := m.img.readMetaBlock(m.next)
		if err != nil {
			return 0, err
		}
		m.data, m.pos, m.next = mb.data, 0, mb.next
	}
	n := copy(p, m.data[m.pos:])
	m.pos += n
	return n, nil
}

func (m *metaReader) bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(m, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Root returns the root directory inode.
func (img *Image) Root() (*Inode, error) {
	return img.ReadInode(img.Super.RootInode)
}

// ReadInode decodes the inode record at ref.
func (img *Image) ReadInode(ref uint64) (*Inode, error) {
	mr, err := img.metaReaderAt(img.Super.InodeTableStart, ref)
	if err != nil {
		return nil, err
	}
	b, err := mr.bytes(16)
	if err != nil {
		return nil, err
	}
	ino := &Inode{
		Type:    InodeType(le.Uint16(b[0:])),
		Mode:    le.Uint16(b[2:]),
		ModTime: le.Uint32(b[8:]),
		Number:  le.Uint32(b[12:]),
		Ref:     ref,
	}
	if ino.UID, err = img.id(le.Uint16(b[4:])); err != nil {
		return nil, err
	}
	if ino.GID, err = img.id(le.Uint16(b[6:])); err != nil {
		return nil, err
	}

	switch ino.Type {
	case InodeDir:
		if b, err = mr.bytes(16); err != nil {
			return nil, err
		}
		ino.DirBlock = le.Uint32(b[0:])
		ino.Nlink = le.Uint32(b[4:])
		ino.Size = uint64(le.Uint16(b[8:]))
		ino.DirOffset = le.Uint16(b[10:])
		ino.Parent = le.Uint32(b[12:])
	case InodeExtDir:
		if b, err = mr.bytes(24); err != nil {
			return nil, err
		}
		ino.Nlink = le.Uint32(b[0:])
		ino.Size = uint64(le.Uint32(b[4:]))
		ino.DirBlock = le.Uint32(b[8:])
		ino.Parent = le.Uint32(b[12:])
		ino.DirOffset = le.Uint16(b[18:])
	case InodeFile:
		if b, err = mr.bytes(16); err != nil {
			return nil, err
		}
		ino.Nlink = 1
		ino.BlocksStart = uint64(le.Uint32(b[0:]))
		ino.Fragment = le.Uint32(b[4:])
		ino.FragOffset = le.Uint32(b[8:])
		ino.Size = uint64(le.Uint32(b[12:]))
		err = img.readBlockSizes(mr, ino)
	case InodeExtFile:
		if b, err = mr.bytes(40); err != nil {
			return nil, err
		}
		ino.BlocksStart = le.Uint64(b[0:])
		ino.Size = le.Uint64(b[8:])
		ino.Nlink = le.Uint32(b[24:])
		ino.Fragment = le.Uint32(b[28:])
		ino.FragOffset = le.Uint32(b[32:])
		err = img.readBlockSizes(mr, ino)
	case InodeSymlink, InodeExtSymlink:
		if b, err = mr.bytes(8); err != nil {
			return nil, err
		}
		ino.Nlink = le.Uint32(b[0:])
		ino.Size = uint64(le.Uint32(b[4:]))
		if b, err = mr.bytes(int(ino.Size)); err != nil {
			return nil, err
		}
		ino.Target = string(b)
	case InodeBlockDev, InodeCharDev, InodeExtBlockDev, InodeExtCharDev:
		if b, err = mr.bytes(8); err != nil {
			return nil, err
		}
		ino.Nlink = le.Uint32(b[0:])
		ino.Devno = le.Uint32(b[4:])
	case InodeFifo, InodeSocket, InodeExtFifo, InodeExtSocket:
		if b, err = mr.bytes(4); err != nil {
			return nil, err
		}
		ino.Nlink = le.Uint32(b[0:])
	default:
		return nil, corrupt("inode at %#x has type %d", ref, ino.Type)
	}
	if err != nil {
		return nil, err
	}
	return ino, nil
}

func (img *Image) id(idx uint16) (uint32, error) {
	if int(idx) >= len(img.ids) {
		return 0, corrupt("id index %d out of range", idx)
	}
	return img.ids[idx], nil
}

func (img *Image) readBlockSizes(mr *metaReader, ino *Inode) error {
	bs := uint64(img.Super.BlockSize)
	count := ino.Size / bs
	if ino.Fragment == noFragment && ino.Size%bs != 0 {
		count++
	}
	b, err := mr.bytes(int(count) * 4)
	if err != nil {
		return err
	}
	ino.BlockSizes = make([]uint32, count)
	for i := range ino.BlockSizes {
		ino.BlockSizes[i] = le.Uint32(b[i*4:])
	}
	return nil
}

// ReadDir decodes the listing of a directory inode.
func (img *Image) ReadDir(dir *Inode) ([]DirEntry, error) {
	if !dir.IsDir() {
		return nil, errors.Wrapf(ErrNotDirectory, "inode %d", dir.Number)
	}
	if dir.Size == 0 {
		return nil, nil
	}
	mr, err := img.metaReaderAt(img.Super.DirTableStart, uint64(dir.DirBlock)<<16|uint64(dir.DirOffset))
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var read uint64
	// Some writers count three extra bytes for "." and "..".
	for dir.Size-read >= dirHeaderSize {
		hdr, err := mr.bytes(dirHeaderSize)
		if err != nil {
			return nil, err
		}
		read += dirHeaderSize
		count := le.Uint32(hdr[0:]) + 1
		block := le.Uint32(hdr[4:])
		base := le.Uint32(hdr[8:])
		if count > MaxDirEntries {
			return nil, corrupt("directory %d: run of %d entries", dir.Number, count)
		}
		for i := uint32(0); i < count; i++ {
			e, err := mr.bytes(dirEntrySize)
			if err != nil {
				return nil, err
			}
			nameLen := int(le.Uint16(e[6:])) + 1
			name, err := mr.bytes(nameLen)
			if err != nil {
				return nil, err
			}
			read += dirEntrySize + uint64(nameLen)
			entries = append(entries, DirEntry{
				Name:  string(name),
				Type:  InodeType(le.Uint16(e[4:])),
				Inode: uint32(int64(base) + int64(int16(le.Uint16(e[2:])))),
				Ref:   uint64(block)<<16 | uint64(le.Uint16(e[0:])),
			})
		}
	}
	if read != dir.Size && read+3 != dir.Size {
		return nil, corrupt("directory %d: listing is %d bytes, inode says %d", dir.Number, read, dir.Size)
	}
	return entries, nil
}

// Lookup resolves a slash separated path from the root.
func (img *Image) Lookup(p string) (*Inode, error) {
	ino, err := img.Root()
	if err != nil {
		return nil, err
	}
	for _, name := range strings.Split(path.Clean("/"+p), "/") {
		if name == "" {
			continue
		}
		ino, err = img.LookupIn(ino, name)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", p)
		}
	}
	return ino, nil
}

// LookupIn finds name in directory dir.
func (img *Image) LookupIn(dir *Inode, name string) (*Inode, error) {
	entries, err := img.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return img.ReadInode(e.Ref)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%q", name)
}

// Walk calls fn for every inode below the root, parents before children and
// siblings in listing order. The root is visited as "/".
func (img *Image) Walk(fn func(p string, ino *Inode) error) error {
	root, err := img.Root()
	if err != nil {
		return err
	}
	return img.walk("/", root, fn)
}

func (img *Image) walk(p string, ino *Inode, fn func(string, *Inode) error) error {
	if err := fn(p, ino); err != nil {
		return err
	}
	if !ino.IsDir() {
		return nil
	}
	entries, err := img.ReadDir(ino)
	if err != nil {
		return errors.Wrapf(err, "%s", p)
	}
	for _, e := range entries {
		child, err := img.ReadInode(e.Ref)
		if err != nil {
			return errors.Wrapf(err, "%s", path.Join(p, e.Name))
		}
		if err := img.walk(path.Join(p, e.Name), child, fn); err != nil {
			return err
		}
	}
	return nil
}

// ReadFileAt reads file content at off, like io.ReaderAt.
func (img *Image) ReadFileAt(ino *Inode, p []byte, off int64) (int, error) {
	if ino.Type.Basic() != InodeFile {
		return 0, errors.Wrapf(ErrUnsupportedType, "inode %d is a %s", ino.Number, ino.Type)
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	bs := uint64(img.Super.BlockSize)
	pos := uint64(off)
	total := 0
	for total < len(p) && pos < ino.Size {
		block, err := img.fileBlock(ino, pos/bs)
		if err != nil {
			return total, err
		}
		within := pos % bs
		if within >= uint64(len(block)) {
			return total, corrupt("inode %d: block %d is short", ino.Number, pos/bs)
		}
		n := copy(p[total:], block[within:])
		total += n
		pos += uint64(n)
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// FileReader returns a reader over the content of a regular file.
func (img *Image) FileReader(ino *Inode) *io.SectionReader {
	return io.NewSectionReader(fileReaderAt{img, ino}, 0, int64(ino.Size))
}

type fileReaderAt struct {
	img *Image
	ino *Inode
}

func (f fileReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return f.img.ReadFileAt(f.ino, p, off)
}

// fileBlock returns the uncompressed content of block i of a file, which may
// be its fragment tail.
func (img *Image) fileBlock(ino *Inode, i uint64) ([]byte, error) {
	bs := uint64(img.Super.BlockSize)
	want := min(bs, ino.Size-i*bs)

	if i < uint64(len(ino.BlockSizes)) {
		start := ino.BlocksStart
		for _, s := range ino.BlockSizes[:i] {
			start += uint64(s &^ blockStored)
		}
		data, err := img.dataBlock(start, ino.BlockSizes[i])
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) < want {
			return nil, corrupt("inode %d: block %d holds %d of %d bytes", ino.Number, i, len(data), want)
		}
		return data[:want], nil
	}

	if ino.Fragment == noFragment || int(ino.Fragment) >= len(img.frags) {
		return nil, corrupt("inode %d: tail has no fragment", ino.Number)
	}
	f := img.frags[ino.Fragment]
	data, err := img.dataBlock(f.Start, f.Size)
	if err != nil {
		return nil, err
	}
	end := uint64(ino.FragOffset) + want
	if end > uint64(len(data)) {
		return nil, corrupt("inode %d: tail runs past fragment %d", ino.Number, ino.Fragment)
	}
	return data[ino.FragOffset:end], nil
}

// dataBlock reads and decompresses one data or fragment block.
func (img *Image) dataBlock(off uint64, sizeWord uint32) ([]byte, error) {
	bs := int(img.Super.BlockSize)
	size := int(sizeWord &^ blockStored)
	if size == 0 {
		return make([]byte, bs), nil
	}
	if size > bs {
		return nil, corrupt("data block at %d: size %d", off, size)
	}

	img.mu.Lock()
	cached, ok := img.data[off]
	img.mu.Unlock()
	if ok {
		return cached, nil
	}

	raw := make([]byte, size)
	if _, err := img.r.ReadAt(raw, int64(off)); err != nil {
		return nil, corrupt("data block at %d: %v", off, err)
	}
	data := raw
	if sizeWord&blockStored == 0 {
		buf := make([]byte, bs)
		n, err := img.decompress(buf, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "data block at %d", off)
		}
		data = buf[:n]
	}

	img.mu.Lock()
	if len(img.data) >= dataCacheSize {
		clear(img.data)
	}
	img.data[off] = data
	img.mu.Unlock()
	return data, nil
}
