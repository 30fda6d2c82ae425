package fusefs

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/dendrascience/pkg2sqfs/source"
	"github.com/dendrascience/pkg2sqfs/sqfs"
	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const buildTime = 1700000000

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// testFS builds a small image and returns a filesystem over it plus the
// content of bin/tool.
func testFS(t *testing.T) (*FS, []byte) {
	t.Helper()
	tool := make([]byte, 10000)
	_, err := rand.Read(tool)
	assert.NilError(t, err)

	pkg := source.NewMemory().
		AddDir("bin", 0o755, 0, 0).
		AddFile("bin/tool", 0o755, 0, 0, tool).
		AddSymlink("bin/alias", "tool", 0, 0).
		AddDir("dev", 0o755, 0, 0).
		AddDevice("dev/null", fs.ModeCharDevice|0o666, 1, 3, 0, 0).
		AddFile("readme", 0o644, 1000, 1000, []byte("hello\n"))

	p := filepath.Join(t.TempDir(), "image.sqfs")
	f, err := os.Create(p)
	assert.NilError(t, err)
	_, err = sqfs.Build(f, pkg,
		sqfs.WithBlockSize(4096),
		sqfs.WithTimestamp(buildTime),
		sqfs.WithLogger(quietLogger()))
	assert.NilError(t, err)
	assert.NilError(t, f.Close())

	r, err := os.Open(p)
	assert.NilError(t, err)
	t.Cleanup(func() { r.Close() })
	img, err := sqfs.Open(r)
	assert.NilError(t, err)
	return New(img, quietLogger()), tool
}

func lookup(t *testing.T, filesystem *FS, names ...string) fusefs.Node {
	t.Helper()
	n, err := filesystem.Root()
	assert.NilError(t, err)
	for _, name := range names {
		dir, ok := n.(*Dir)
		assert.Assert(t, ok, "%s: parent is %T", name, n)
		n, err = dir.Lookup(context.Background(), name)
		assert.NilError(t, err)
	}
	return n
}

func TestRootAttr(t *testing.T) {
	filesystem, _ := testFS(t)
	root := lookup(t, filesystem)

	var a fuse.Attr
	assert.NilError(t, root.Attr(context.Background(), &a))
	assert.Equal(t, a.Mode, fs.ModeDir|0o755)
	assert.Equal(t, a.Nlink, uint32(4))
	assert.Assert(t, a.Mtime.Equal(time.Unix(buildTime, 0)))
	assert.Equal(t, a.BlockSize, uint32(4096))
}

func TestReadDirAll(t *testing.T) {
	filesystem, _ := testFS(t)
	root := lookup(t, filesystem).(*Dir)

	dirents, err := root.ReadDirAll(context.Background())
	assert.NilError(t, err)
	var names []string
	for _, d := range dirents {
		names = append(names, d.Name)
	}
	assert.DeepEqual(t, names, []string{"bin", "dev", "readme"})
	assert.Equal(t, dirents[0].Type, fuse.DT_Dir)
	assert.Equal(t, dirents[2].Type, fuse.DT_File)

	bin := lookup(t, filesystem, "bin").(*Dir)
	dirents, err = bin.ReadDirAll(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, is.Len(dirents, 2))
	assert.Equal(t, dirents[0].Name, "alias")
	assert.Equal(t, dirents[0].Type, fuse.DT_Link)
}

func TestLookupMissing(t *testing.T) {
	filesystem, _ := testFS(t)
	root := lookup(t, filesystem).(*Dir)
	_, err := root.Lookup(context.Background(), "nope")
	assert.Equal(t, err, syscall.ENOENT)
}

func TestFileRead(t *testing.T) {
	filesystem, tool := testFS(t)
	f := lookup(t, filesystem, "bin", "tool").(*File)

	var a fuse.Attr
	assert.NilError(t, f.Attr(context.Background(), &a))
	assert.Equal(t, a.Size, uint64(len(tool)))
	assert.Equal(t, a.Mode, fs.FileMode(0o755))

	tests := []struct {
		name string
		off  int64
		size int
		want []byte
	}{
		{"start", 0, 100, tool[:100]},
		{"across blocks", 4000, 200, tool[4000:4200]},
		{"tail", 9000, 4096, tool[9000:]},
		{"past end", 20000, 10, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp fuse.ReadResponse
			err := f.Read(context.Background(), &fuse.ReadRequest{Offset: tt.off, Size: tt.size}, &resp)
			assert.NilError(t, err)
			assert.Assert(t, bytes.Equal(resp.Data, tt.want))
		})
	}
}

func TestOpenReadOnly(t *testing.T) {
	filesystem, _ := testFS(t)
	f := lookup(t, filesystem, "readme").(*File)

	var resp fuse.OpenResponse
	h, err := f.Open(context.Background(), &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, &resp)
	assert.NilError(t, err)
	assert.Equal(t, h, fusefs.Handle(f))

	_, err = f.Open(context.Background(), &fuse.OpenRequest{Flags: fuse.OpenReadWrite}, &resp)
	assert.Equal(t, err, syscall.EROFS)
}

func TestSymlinkAndDevice(t *testing.T) {
	filesystem, _ := testFS(t)

	link := lookup(t, filesystem, "bin", "alias").(*Symlink)
	target, err := link.Readlink(context.Background(), &fuse.ReadlinkRequest{})
	assert.NilError(t, err)
	assert.Equal(t, target, "tool")

	null := lookup(t, filesystem, "dev", "null").(*Special)
	var a fuse.Attr
	assert.NilError(t, null.Attr(context.Background(), &a))
	assert.Equal(t, a.Mode, fs.ModeDevice|fs.ModeCharDevice|0o666)
	assert.Equal(t, a.Rdev, sqfs.EncodeDev(1, 3))
}

func TestStatfs(t *testing.T) {
	filesystem, _ := testFS(t)
	var resp fuse.StatfsResponse
	assert.NilError(t, filesystem.Statfs(context.Background(), &fuse.StatfsRequest{}, &resp))
	assert.Equal(t, resp.Files, uint64(7))
	assert.Equal(t, resp.Bsize, uint32(4096))
	assert.Equal(t, resp.Namelen, uint32(sqfs.MaxNameLen))
	assert.Assert(t, resp.Blocks > 0)
}

// TestConcurrentReads verifies parallel reads of one file neither deadlock
// nor mix up block caches
func TestConcurrentReads(t *testing.T) {
	filesystem, tool := testFS(t)
	f := lookup(t, filesystem, "bin", "tool").(*File)

	done := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(off int64) {
				defer wg.Done()
				var resp fuse.ReadResponse
				err := f.Read(context.Background(), &fuse.ReadRequest{Offset: off, Size: 1000}, &resp)
				if err == nil && !bytes.Equal(resp.Data, tool[off:off+1000]) {
					err = syscall.EIO
				}
				if err != nil {
					mu.Lock()
					firstErr = err
					mu.Unlock()
				}
			}(int64(i) * 500)
		}
		wg.Wait()
		done <- firstErr
	}()

	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Read deadlocked - test timed out")
	}
}
