//go:build unix

package source

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

func statOwner(info fs.FileInfo) (uid, gid, major, minor uint32) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, 0, 0
	}
	rdev := uint64(st.Rdev)
	return st.Uid, st.Gid, unix.Major(rdev), unix.Minor(rdev)
}
