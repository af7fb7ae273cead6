//go:build linux

package files

import (
	"golang.org/x/sys/unix"
)

// fromSys converts a stat_t. Linux exposes no birth time via stat, so the
// change time is reported.
func fromSys(st *unix.Stat_t) *Stat {
	return &Stat{
		Dev:         uint64(st.Dev),
		Ino:         uint64(st.Ino),
		Mode:        uint32(st.Mode),
		Nlink:       uint64(st.Nlink),
		UID:         st.Uid,
		GID:         st.Gid,
		Rdev:        uint64(st.Rdev),
		Size:        st.Size,
		Blksize:     int64(st.Blksize),
		Blocks:      st.Blocks,
		AtimeMs:     timespecMs(st.Atim),
		MtimeMs:     timespecMs(st.Mtim),
		CtimeMs:     timespecMs(st.Ctim),
		BirthtimeMs: timespecMs(st.Ctim),
	}
}

func fdatasync(fd int) error {
	return unix.Fdatasync(fd)
}

func sendfileNative(outFd, inFd int, offset *int64, count int) (int, error) {
	return unix.Sendfile(outFd, inFd, offset, count)
}
