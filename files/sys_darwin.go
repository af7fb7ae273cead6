//go:build darwin

package files

import (
	"golang.org/x/sys/unix"
)

func fromSys(st *unix.Stat_t) *Stat {
	return &Stat{
		Dev:         uint64(uint32(st.Dev)),
		Ino:         st.Ino,
		Mode:        uint32(st.Mode),
		Nlink:       uint64(st.Nlink),
		UID:         st.Uid,
		GID:         st.Gid,
		Rdev:        uint64(uint32(st.Rdev)),
		Size:        st.Size,
		Blksize:     int64(st.Blksize),
		Blocks:      st.Blocks,
		AtimeMs:     timespecMs(st.Atim),
		MtimeMs:     timespecMs(st.Mtim),
		CtimeMs:     timespecMs(st.Ctim),
		BirthtimeMs: timespecMs(st.Btim),
	}
}

// fdatasync uses F_FULLFSYNC, as darwin's fsync does not flush the drive
// cache, falling back to fsync where the filesystem does not support it.
func fdatasync(fd int) error {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0); err == nil {
		return nil
	}
	return unix.Fsync(fd)
}

// sendfileNative is unsupported, darwin's sendfile requires a socket as the
// destination.
func sendfileNative(int, int, *int64, int) (int, error) {
	return 0, unix.ENOTSUP
}
