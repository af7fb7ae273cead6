package buffer

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	minClassShift = 9  // 512 bytes
	maxClassShift = 16 // 64 KiB
	numClasses    = maxClassShift - minClassShift + 1
)

// Pool is a size-classed scratch allocator. Requests larger than the biggest
// class are allocated directly. The zero value is ready to use.
type Pool struct {
	classes     [numClasses]sync.Pool
	outstanding atomic.Int64
}

// Default is the pool used by the go-uvio packages.
var Default = new(Pool)

// Outstanding returns the number of scratch buffers that have been handed
// out and not yet returned.
func (p *Pool) Outstanding() int64 { return p.outstanding.Load() }

// get returns a scratch buffer of length n.
func (p *Pool) get(n int) []byte {
	p.outstanding.Add(1)
	c := classOf(n)
	if c < 0 {
		return make([]byte, n)
	}
	if v, ok := p.classes[c].Get().(*[]byte); ok {
		return (*v)[:n]
	}
	return make([]byte, n, 1<<(c+minClassShift))
}

// put releases a buffer obtained from get.
func (p *Pool) put(b []byte) {
	p.outstanding.Add(-1)
	c := classOf(cap(b))
	if c < 0 || cap(b) != 1<<(c+minClassShift) {
		return
	}
	clear(b[:cap(b)])
	b = b[:0]
	p.classes[c].Put(&b)
}

// classOf returns the index of the smallest class that fits n, or -1 if n is
// larger than every class.
func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Scratch acquires a library-owned buffer of length n, not associated with
// any caller region. The bytes exposed by the lease are only valid until it
// is released.
func (p *Pool) Scratch(n int) *Lease {
	return &Lease{pool: p, buf: p.get(n), scratch: true}
}

// Acquire prepares r as the destination of a read. Pinned regions are used
// as is. Copied regions are backed by a scratch buffer, and Commit copies the
// filled prefix back out.
func (p *Pool) Acquire(r Region) (*Lease, error) {
	if err := r.Valid(); err != nil {
		return nil, err
	}
	x := &Lease{pool: p, region: r}
	if r.Pinned() {
		x.buf = r.Bytes()
	} else {
		x.buf = p.get(r.Len())
		x.scratch = true
	}
	return x, nil
}

// Stage prepares r as the source of a write. Copied regions are snapshot into
// a scratch buffer, so the caller may reuse its bytes once Stage returns.
func (p *Pool) Stage(r Region) (*Lease, error) {
	x, err := p.Acquire(r)
	if err != nil {
		return nil, err
	}
	if x.scratch {
		copy(x.buf, r.Bytes())
	}
	return x, nil
}
