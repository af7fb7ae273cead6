package files

import (
	"bytes"

	"golang.org/x/sys/unix"
)

const direntBufSize = 8 * 1024

// readdir lists the directory at path. The names are packed into a single
// buffer, each NUL terminated, then decoded by count.
func readdir(path string) ([]string, error) {
	fd, err := retryEINTR(func() (int, error) {
		return unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	})
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var (
		packed []byte
		count  int
		buf    = make([]byte, direntBufSize)
		names  []string
	)
	for {
		n, err := retryEINTR(func() (int, error) { return unix.ReadDirent(fd, buf) })
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			break
		}
		// ParseDirent skips "." and ".."
		var consumed int
		names = names[:0]
		for consumed < n {
			var c int
			c, _, names = unix.ParseDirent(buf[consumed:n], -1, names)
			if c <= 0 {
				break
			}
			consumed += c
		}
		for _, name := range names {
			packed = append(packed, name...)
			packed = append(packed, 0)
			count++
		}
	}
	return decodeNames(packed, count), nil
}

// decodeNames splits count NUL terminated names from packed. Decoding stops
// at count, regardless of any trailing bytes.
func decodeNames(packed []byte, count int) []string {
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		end := bytes.IndexByte(packed, 0)
		if end < 0 {
			assertTerminated(packed)
			end = len(packed)
		}
		names = append(names, string(packed[:end]))
		if end < len(packed) {
			end++
		}
		packed = packed[end:]
	}
	return names
}
