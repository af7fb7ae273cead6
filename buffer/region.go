// Package buffer implements ownership of the byte regions that cross an
// asynchronous boundary.
//
// A [Region] is either pinned, meaning the caller's slice is handed to the OS
// call directly and must not be touched until the operation completes, or
// copied, meaning the library stages the bytes through a scratch buffer from a
// [Pool]. Scratch buffers are only ever reachable through a [Lease], which
// must be released on every path, typically via defer.
package buffer

import (
	"errors"
)

// Suggested scratch sizes.
const (
	// StreamSize is the default read size suggested for streams.
	StreamSize = 64 * 1024
	// DatagramCeiling is the largest scratch used for datagram receives.
	DatagramCeiling = 2 * 1024
)

var (
	// ErrNoBuffer indicates neither a pinned nor a copied region was supplied.
	ErrNoBuffer = errors.New("buffer: no buffer supplied")
	// ErrAmbiguousBuffer indicates both a pinned and a copied region were
	// supplied.
	ErrAmbiguousBuffer = errors.New("buffer: both pinned and copied regions supplied")
	// ErrBounds indicates an offset or length outside the supplied data.
	ErrBounds = errors.New("buffer: offset or length out of range")
)

type (
	// Region identifies the caller's bytes for a single read or write.
	// The zero value is not a valid region.
	Region struct {
		data   []byte
		offset int
		length int
		kind   regionKind
	}

	regionKind uint8
)

const (
	kindNone regionKind = iota
	kindPinned
	kindCopied
)

// Pin returns a region that will be used zero-copy. The caller must not
// read, write, or reuse b until the operation using it completes.
func Pin(b []byte) Region {
	return Region{data: b, length: len(b), kind: kindPinned}
}

// Copy returns a region over data[offset:offset+length], that will be staged
// through library scratch. The caller keeps ownership of data, which is only
// accessed at submission (writes) and completion (reads).
func Copy(data []byte, offset, length int) (Region, error) {
	if offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		return Region{}, ErrBounds
	}
	return Region{data: data, offset: offset, length: length, kind: kindCopied}, nil
}

// FromParts enforces that exactly one of pinned or data is supplied, and
// builds the corresponding region.
func FromParts(pinned, data []byte, offset, length int) (Region, error) {
	switch {
	case pinned != nil && data != nil:
		return Region{}, ErrAmbiguousBuffer
	case pinned != nil:
		return Pin(pinned), nil
	case data != nil:
		return Copy(data, offset, length)
	default:
		return Region{}, ErrNoBuffer
	}
}

// Valid returns an error if r is the zero value.
func (r Region) Valid() error {
	if r.kind == kindNone {
		return ErrNoBuffer
	}
	return nil
}

// Pinned reports whether r is used zero-copy.
func (r Region) Pinned() bool { return r.kind == kindPinned }

// Len returns the capacity of the region, in bytes.
func (r Region) Len() int { return r.length }

// Bytes returns the caller's bytes for the region.
func (r Region) Bytes() []byte {
	if r.kind == kindNone {
		return nil
	}
	return r.data[r.offset : r.offset+r.length : r.offset+r.length]
}
