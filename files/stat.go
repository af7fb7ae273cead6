package files

import (
	"golang.org/x/sys/unix"
)

// Stat is an immutable snapshot of file metadata. Timestamps are
// milliseconds since the Unix epoch.
type Stat struct {
	Dev         uint64
	Ino         uint64
	Mode        uint32
	Nlink       uint64
	UID         uint32
	GID         uint32
	Rdev        uint64
	Size        int64
	Blksize     int64
	Blocks      int64
	AtimeMs     float64
	MtimeMs     float64
	CtimeMs     float64
	BirthtimeMs float64
}

// IsDir reports whether the mode describes a directory.
func (s *Stat) IsDir() bool { return s.Mode&unix.S_IFMT == unix.S_IFDIR }

// IsRegular reports whether the mode describes a regular file.
func (s *Stat) IsRegular() bool { return s.Mode&unix.S_IFMT == unix.S_IFREG }

// IsSymlink reports whether the mode describes a symbolic link.
func (s *Stat) IsSymlink() bool { return s.Mode&unix.S_IFMT == unix.S_IFLNK }

// Equal reports whether s and o describe the same file state. The access
// time is ignored.
func (s *Stat) Equal(o *Stat) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Dev == o.Dev &&
		s.Ino == o.Ino &&
		s.Mode == o.Mode &&
		s.UID == o.UID &&
		s.GID == o.GID &&
		s.Size == o.Size &&
		s.MtimeMs == o.MtimeMs &&
		s.CtimeMs == o.CtimeMs &&
		s.BirthtimeMs == o.BirthtimeMs
}

func timespecMs(ts unix.Timespec) float64 {
	sec, nsec := ts.Unix()
	return float64(sec)*1000 + float64(nsec)/1e6
}

func stat(path string) (*Stat, error) {
	var st unix.Stat_t
	if err := ignoreEINTR(func() error { return unix.Stat(path, &st) }); err != nil {
		return nil, err
	}
	return fromSys(&st), nil
}

func lstat(path string) (*Stat, error) {
	var st unix.Stat_t
	if err := ignoreEINTR(func() error { return unix.Lstat(path, &st) }); err != nil {
		return nil, err
	}
	return fromSys(&st), nil
}

func fstat(fd int) (*Stat, error) {
	var st unix.Stat_t
	if err := ignoreEINTR(func() error { return unix.Fstat(fd, &st) }); err != nil {
		return nil, err
	}
	return fromSys(&st), nil
}
