package files

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-uvio/buffer"
	"github.com/joeycumines/go-uvio/eventloop"
	"github.com/joeycumines/go-uvio/ioerr"
	"golang.org/x/sys/unix"
)

// CurrentPosition as a read or write position uses (and advances) the
// descriptor's file offset.
const CurrentPosition = -1

func opErr(kind eventloop.OpKind, path string, err error) error {
	return ioerr.New(err, kind.String(), path)
}

// retryEINTR retries fn while it fails with EINTR.
func retryEINTR[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if err != unix.EINTR {
			return v, err
		}
	}
}

func ignoreEINTR(fn func() error) error {
	_, err := retryEINTR(func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// --- open / close ---

func (x *FS) open(path string, flags int, mode uint32) (openResult, error) {
	fd, err := retryEINTR(func() (int, error) {
		return unix.Open(path, flags|unix.O_CLOEXEC, mode)
	})
	if err != nil {
		return openResult{}, err
	}
	x.track(fd, path)
	return openResult{fd: fd, path: path}, nil
}

// Open opens path, returning the new descriptor.
func (x *FS) Open(path string, flags int, mode uint32) (int, error) {
	res, err := x.open(path, flags, mode)
	if err != nil {
		return -1, opErr(eventloop.OpOpen, path, err)
	}
	return res.fd, nil
}

// OpenAsync is the asynchronous form of Open.
func (x *FS) OpenAsync(path string, flags int, mode uint32, ctx any, cb OpenCallback) error {
	return submit(x, eventloop.OpOpen, -1, path, ctx, func() (openResult, error) {
		return x.open(path, flags, mode)
	}, func(ctx any, v openResult, err error) {
		if cb == nil {
			return
		}
		if err != nil {
			cb(ctx, -1, ``, err)
			return
		}
		cb(ctx, v.fd, v.path, nil)
	})
}

func (x *FS) close(fd int) error {
	// close must not be retried, the descriptor is released even on EINTR
	err := unix.Close(fd)
	if err != unix.EBADF {
		x.untrack(fd)
	}
	if err == unix.EINTR {
		err = nil
	}
	return err
}

// Close closes fd.
func (x *FS) Close(fd int) error {
	path := x.Path(fd)
	if err := x.close(fd); err != nil {
		return opErr(eventloop.OpClose, path, err)
	}
	return nil
}

// CloseAsync is the asynchronous form of Close.
func (x *FS) CloseAsync(fd int, ctx any, cb Callback) error {
	return submit(x, eventloop.OpClose, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(x.close(fd))
	}, noPayload(cb))
}

// --- read / write ---

func (x *FS) read(fd int, b []byte, position int64) (int, error) {
	return retryEINTR(func() (int, error) {
		if position < 0 {
			return unix.Read(fd, b)
		}
		return unix.Pread(fd, b, position)
	})
}

func (x *FS) write(fd int, b []byte, position int64) (int, error) {
	var total int
	for total < len(b) {
		n, err := retryEINTR(func() (int, error) {
			if position < 0 {
				return unix.Write(fd, b[total:])
			}
			return unix.Pwrite(fd, b[total:], position+int64(total))
		})
		if n > 0 {
			total += n
		}
		if err != nil {
			if total > 0 {
				break
			}
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Read reads up to r.Len() bytes from fd, at position, or the current
// position if position is CurrentPosition. It returns the number of bytes
// read, and the filled prefix of r. Zero bytes at a non-zero length means
// end of file.
func (x *FS) Read(fd int, r buffer.Region, position int64) (int, []byte, error) {
	lease, err := x.pool.Acquire(r)
	if err != nil {
		return 0, nil, fmt.Errorf("files: read: %w", err)
	}
	defer lease.Release()
	n, err := x.read(fd, lease.Bytes(), position)
	if err != nil {
		return 0, nil, opErr(eventloop.OpRead, x.Path(fd), err)
	}
	return n, lease.Commit(n), nil
}

// ReadAsync is the asynchronous form of Read. For a copied region, the
// caller's bytes are filled just before cb is called.
func (x *FS) ReadAsync(fd int, r buffer.Region, position int64, ctx any, cb ReadCallback) error {
	lease, err := x.pool.Acquire(r)
	if err != nil {
		return fmt.Errorf("files: read: %w", err)
	}
	shared := newSharedLease(lease)
	err = submit(x, eventloop.OpRead, fd, x.Path(fd), ctx, func() (int, error) {
		if !shared.begin() {
			return 0, unix.ECANCELED
		}
		defer shared.release()
		return x.read(fd, lease.Bytes(), position)
	}, func(ctx any, n int, err error) {
		defer shared.finish()
		if err != nil {
			if cb != nil {
				cb(ctx, 0, nil, err)
			}
			return
		}
		data := lease.Commit(n)
		if cb != nil {
			cb(ctx, n, data, nil)
		}
	})
	if err != nil {
		lease.Release()
	}
	return err
}

// Write writes the bytes of r to fd, at position, or the current position
// if position is CurrentPosition, returning the number of bytes written.
func (x *FS) Write(fd int, r buffer.Region, position int64) (int, error) {
	lease, err := x.pool.Stage(r)
	if err != nil {
		return 0, fmt.Errorf("files: write: %w", err)
	}
	defer lease.Release()
	n, err := x.write(fd, lease.Bytes(), position)
	if err != nil {
		return 0, opErr(eventloop.OpWrite, x.Path(fd), err)
	}
	return n, nil
}

// WriteAsync is the asynchronous form of Write. A copied region is
// snapshot before WriteAsync returns. A pinned region must not be modified
// until cb is called.
func (x *FS) WriteAsync(fd int, r buffer.Region, position int64, ctx any, cb WriteCallback) error {
	lease, err := x.pool.Stage(r)
	if err != nil {
		return fmt.Errorf("files: write: %w", err)
	}
	shared := newSharedLease(lease)
	err = submit(x, eventloop.OpWrite, fd, x.Path(fd), ctx, func() (int, error) {
		if !shared.begin() {
			return 0, unix.ECANCELED
		}
		defer shared.release()
		return x.write(fd, lease.Bytes(), position)
	}, func(ctx any, n int, err error) {
		defer shared.finish()
		if cb != nil {
			cb(ctx, n, err)
		}
	})
	if err != nil {
		lease.Release()
	}
	return err
}

// --- path primitives with no payload ---

// Unlink removes the file at path.
func (x *FS) Unlink(path string) error {
	return opErr(eventloop.OpUnlink, path, ignoreEINTR(func() error { return unix.Unlink(path) }))
}

// UnlinkAsync is the asynchronous form of Unlink.
func (x *FS) UnlinkAsync(path string, ctx any, cb Callback) error {
	return submit(x, eventloop.OpUnlink, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Unlink(path))
	}, noPayload(cb))
}

// Mkdir creates the directory at path.
func (x *FS) Mkdir(path string, mode uint32) error {
	return opErr(eventloop.OpMkdir, path, ignoreEINTR(func() error { return unix.Mkdir(path, mode) }))
}

// MkdirAsync is the asynchronous form of Mkdir.
func (x *FS) MkdirAsync(path string, mode uint32, ctx any, cb Callback) error {
	return submit(x, eventloop.OpMkdir, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Mkdir(path, mode))
	}, noPayload(cb))
}

// Rmdir removes the empty directory at path.
func (x *FS) Rmdir(path string) error {
	return opErr(eventloop.OpRmdir, path, ignoreEINTR(func() error { return unix.Rmdir(path) }))
}

// RmdirAsync is the asynchronous form of Rmdir.
func (x *FS) RmdirAsync(path string, ctx any, cb Callback) error {
	return submit(x, eventloop.OpRmdir, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Rmdir(path))
	}, noPayload(cb))
}

// Rename renames path to newPath. Errors report path.
func (x *FS) Rename(path, newPath string) error {
	return opErr(eventloop.OpRename, path, ignoreEINTR(func() error { return unix.Rename(path, newPath) }))
}

// RenameAsync is the asynchronous form of Rename.
func (x *FS) RenameAsync(path, newPath string, ctx any, cb Callback) error {
	return submit(x, eventloop.OpRename, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Rename(path, newPath))
	}, noPayload(cb))
}

// Link creates newPath as a hard link to path. Errors report path.
func (x *FS) Link(path, newPath string) error {
	return opErr(eventloop.OpLink, path, ignoreEINTR(func() error { return unix.Link(path, newPath) }))
}

// LinkAsync is the asynchronous form of Link.
func (x *FS) LinkAsync(path, newPath string, ctx any, cb Callback) error {
	return submit(x, eventloop.OpLink, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Link(path, newPath))
	}, noPayload(cb))
}

// Symlink creates newPath as a symbolic link to path. The flags are
// accepted for compatibility with platforms that distinguish directory
// links, and are ignored. Errors report path.
func (x *FS) Symlink(path, newPath string, flags int) error {
	_ = flags
	return opErr(eventloop.OpSymlink, path, ignoreEINTR(func() error { return unix.Symlink(path, newPath) }))
}

// SymlinkAsync is the asynchronous form of Symlink.
func (x *FS) SymlinkAsync(path, newPath string, flags int, ctx any, cb Callback) error {
	_ = flags
	return submit(x, eventloop.OpSymlink, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Symlink(path, newPath))
	}, noPayload(cb))
}

// Chmod changes the mode of path.
func (x *FS) Chmod(path string, mode uint32) error {
	return opErr(eventloop.OpChmod, path, ignoreEINTR(func() error { return unix.Chmod(path, mode) }))
}

// ChmodAsync is the asynchronous form of Chmod.
func (x *FS) ChmodAsync(path string, mode uint32, ctx any, cb Callback) error {
	return submit(x, eventloop.OpChmod, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Chmod(path, mode))
	}, noPayload(cb))
}

// Chown changes the owner and group of path. An id of -1 is left as is.
func (x *FS) Chown(path string, uid, gid int) error {
	return opErr(eventloop.OpChown, path, ignoreEINTR(func() error { return unix.Chown(path, uid, gid) }))
}

// ChownAsync is the asynchronous form of Chown.
func (x *FS) ChownAsync(path string, uid, gid int, ctx any, cb Callback) error {
	return submit(x, eventloop.OpChown, -1, path, ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Chown(path, uid, gid))
	}, noPayload(cb))
}

// --- descriptor primitives with no payload ---

// Fsync flushes fd to storage.
func (x *FS) Fsync(fd int) error {
	return opErr(eventloop.OpFsync, x.Path(fd), ignoreEINTR(func() error { return unix.Fsync(fd) }))
}

// FsyncAsync is the asynchronous form of Fsync.
func (x *FS) FsyncAsync(fd int, ctx any, cb Callback) error {
	return submit(x, eventloop.OpFsync, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(ignoreEINTR(func() error { return unix.Fsync(fd) }))
	}, noPayload(cb))
}

// Fdatasync flushes the data of fd to storage, and only the metadata
// needed to read it back.
func (x *FS) Fdatasync(fd int) error {
	return opErr(eventloop.OpFdatasync, x.Path(fd), ignoreEINTR(func() error { return fdatasync(fd) }))
}

// FdatasyncAsync is the asynchronous form of Fdatasync.
func (x *FS) FdatasyncAsync(fd int, ctx any, cb Callback) error {
	return submit(x, eventloop.OpFdatasync, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(ignoreEINTR(func() error { return fdatasync(fd) }))
	}, noPayload(cb))
}

// Ftruncate truncates (or extends) fd to length.
func (x *FS) Ftruncate(fd int, length int64) error {
	return opErr(eventloop.OpFtruncate, x.Path(fd), ignoreEINTR(func() error { return unix.Ftruncate(fd, length) }))
}

// FtruncateAsync is the asynchronous form of Ftruncate.
func (x *FS) FtruncateAsync(fd int, length int64, ctx any, cb Callback) error {
	return submit(x, eventloop.OpFtruncate, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(ignoreEINTR(func() error { return unix.Ftruncate(fd, length) }))
	}, noPayload(cb))
}

// Fchmod changes the mode of fd.
func (x *FS) Fchmod(fd int, mode uint32) error {
	return opErr(eventloop.OpFchmod, x.Path(fd), ignoreEINTR(func() error { return unix.Fchmod(fd, mode) }))
}

// FchmodAsync is the asynchronous form of Fchmod.
func (x *FS) FchmodAsync(fd int, mode uint32, ctx any, cb Callback) error {
	return submit(x, eventloop.OpFchmod, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Fchmod(fd, mode))
	}, noPayload(cb))
}

// Fchown changes the owner and group of fd. An id of -1 is left as is.
func (x *FS) Fchown(fd int, uid, gid int) error {
	return opErr(eventloop.OpFchown, x.Path(fd), ignoreEINTR(func() error { return unix.Fchown(fd, uid, gid) }))
}

// FchownAsync is the asynchronous form of Fchown.
func (x *FS) FchownAsync(fd int, uid, gid int, ctx any, cb Callback) error {
	return submit(x, eventloop.OpFchown, fd, x.Path(fd), ctx, func() (eventloop.NoPayload, error) {
		return done(unix.Fchown(fd, uid, gid))
	}, noPayload(cb))
}

// Sendfile copies length bytes from inFd, starting at offset, to outFd.
func (x *FS) Sendfile(outFd, inFd int, offset, length int64) error {
	return opErr(eventloop.OpSendfile, x.Path(inFd), x.sendfile(outFd, inFd, offset, length))
}

// SendfileAsync is the asynchronous form of Sendfile.
func (x *FS) SendfileAsync(outFd, inFd int, offset, length int64, ctx any, cb Callback) error {
	return submit(x, eventloop.OpSendfile, inFd, x.Path(inFd), ctx, func() (eventloop.NoPayload, error) {
		return done(x.sendfile(outFd, inFd, offset, length))
	}, noPayload(cb))
}

// --- readdir ---

// Readdir returns the names of the entries in the directory at path, in the
// order returned by the OS, excluding "." and "..". The flags are accepted
// for compatibility, and are ignored.
func (x *FS) Readdir(path string, flags int) ([]string, error) {
	_ = flags
	names, err := readdir(path)
	if err != nil {
		return nil, opErr(eventloop.OpReaddir, path, err)
	}
	return names, nil
}

// ReaddirAsync is the asynchronous form of Readdir.
func (x *FS) ReaddirAsync(path string, flags int, ctx any, cb ReaddirCallback) error {
	_ = flags
	return submit[[]string](x, eventloop.OpReaddir, -1, path, ctx, func() ([]string, error) {
		return readdir(path)
	}, cb)
}

// --- stat ---

// Stat returns a snapshot of the metadata of path, following links.
func (x *FS) Stat(path string) (*Stat, error) {
	st, err := stat(path)
	if err != nil {
		return nil, opErr(eventloop.OpStat, path, err)
	}
	return st, nil
}

// StatAsync is the asynchronous form of Stat.
func (x *FS) StatAsync(path string, ctx any, cb StatCallback) error {
	return submit[*Stat](x, eventloop.OpStat, -1, path, ctx, func() (*Stat, error) {
		return stat(path)
	}, cb)
}

// Lstat returns a snapshot of the metadata of path, not following links.
func (x *FS) Lstat(path string) (*Stat, error) {
	st, err := lstat(path)
	if err != nil {
		return nil, opErr(eventloop.OpLstat, path, err)
	}
	return st, nil
}

// LstatAsync is the asynchronous form of Lstat.
func (x *FS) LstatAsync(path string, ctx any, cb StatCallback) error {
	return submit[*Stat](x, eventloop.OpLstat, -1, path, ctx, func() (*Stat, error) {
		return lstat(path)
	}, cb)
}

// Fstat returns a snapshot of the metadata of fd.
func (x *FS) Fstat(fd int) (*Stat, error) {
	st, err := fstat(fd)
	if err != nil {
		return nil, opErr(eventloop.OpFstat, x.Path(fd), err)
	}
	return st, nil
}

// FstatAsync is the asynchronous form of Fstat.
func (x *FS) FstatAsync(fd int, ctx any, cb StatCallback) error {
	return submit[*Stat](x, eventloop.OpFstat, fd, x.Path(fd), ctx, func() (*Stat, error) {
		return fstat(fd)
	}, cb)
}

// --- readlink ---

func readlink(path string) (string, error) {
	for size := 256; ; size *= 2 {
		b := make([]byte, size)
		n, err := retryEINTR(func() (int, error) { return unix.Readlink(path, b) })
		if err != nil {
			return ``, err
		}
		if n < size {
			return string(b[:n]), nil
		}
	}
}

// Readlink returns the target of the symbolic link at path.
func (x *FS) Readlink(path string) (string, error) {
	target, err := readlink(path)
	if err != nil {
		return ``, opErr(eventloop.OpReadlink, path, err)
	}
	return target, nil
}

// ReadlinkAsync is the asynchronous form of Readlink.
func (x *FS) ReadlinkAsync(path string, ctx any, cb ReadlinkCallback) error {
	return submit[string](x, eventloop.OpReadlink, -1, path, ctx, func() (string, error) {
		return readlink(path)
	}, cb)
}

// --- utime ---

func utime(path string, atime, mtime time.Time) (time.Time, error) {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNano(path, ts); err != nil {
		return time.Time{}, err
	}
	return mtime, nil
}

func futime(fd int, atime, mtime time.Time) (time.Time, error) {
	tv := []unix.Timeval{
		unix.NsecToTimeval(atime.UnixNano()),
		unix.NsecToTimeval(mtime.UnixNano()),
	}
	if err := unix.Futimes(fd, tv); err != nil {
		return time.Time{}, err
	}
	return mtime, nil
}

// Utime sets the access and modification times of path, returning the
// modification time.
func (x *FS) Utime(path string, atime, mtime time.Time) (time.Time, error) {
	v, err := utime(path, atime, mtime)
	if err != nil {
		return time.Time{}, opErr(eventloop.OpUtime, path, err)
	}
	return v, nil
}

// UtimeAsync is the asynchronous form of Utime.
func (x *FS) UtimeAsync(path string, atime, mtime time.Time, ctx any, cb UtimeCallback) error {
	return submit[time.Time](x, eventloop.OpUtime, -1, path, ctx, func() (time.Time, error) {
		return utime(path, atime, mtime)
	}, cb)
}

// Futime sets the access and modification times of fd, returning the
// modification time. The precision is microseconds.
func (x *FS) Futime(fd int, atime, mtime time.Time) (time.Time, error) {
	v, err := futime(fd, atime, mtime)
	if err != nil {
		return time.Time{}, opErr(eventloop.OpFutime, x.Path(fd), err)
	}
	return v, nil
}

// FutimeAsync is the asynchronous form of Futime.
func (x *FS) FutimeAsync(fd int, atime, mtime time.Time, ctx any, cb UtimeCallback) error {
	return submit[time.Time](x, eventloop.OpFutime, fd, x.Path(fd), ctx, func() (time.Time, error) {
		return futime(fd, atime, mtime)
	}, cb)
}
