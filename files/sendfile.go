package files

import (
	"io"

	"golang.org/x/sys/unix"
)

const sendfileChunk = 64 * 1024

// sendfile copies length bytes, starting at offset, using the native
// syscall where possible, falling back to pread plus write.
func (x *FS) sendfile(outFd, inFd int, offset, length int64) error {
	for length > 0 {
		n, err := retryEINTR(func() (int, error) {
			return sendfileNative(outFd, inFd, &offset, int(min(length, 1<<30)))
		})
		if err != nil {
			if sendfileUnsupported(err) {
				return x.copyRange(outFd, inFd, offset, length)
			}
			return err
		}
		if n == 0 {
			return nil
		}
		length -= int64(n)
	}
	return nil
}

func (x *FS) copyRange(outFd, inFd int, offset, length int64) error {
	lease := x.pool.Scratch(int(min(length, sendfileChunk)))
	defer lease.Release()
	buf := lease.Bytes()
	for length > 0 {
		n, err := x.read(inFd, buf[:min(int64(len(buf)), length)], offset)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		w, err := x.write(outFd, buf[:n], CurrentPosition)
		if err != nil {
			return err
		}
		if w < n {
			return io.ErrShortWrite
		}
		offset += int64(n)
		length -= int64(n)
	}
	return nil
}

func sendfileUnsupported(err error) bool {
	// ENOTSUP and EOPNOTSUPP are the same errno on linux
	return err == unix.EINVAL || err == unix.ENOSYS || err == unix.ENOTSUP ||
		err == unix.EOPNOTSUPP || err == unix.ENOTSOCK || err == unix.EXDEV
}
