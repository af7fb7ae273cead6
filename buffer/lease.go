package buffer

// Lease is a scoped hold on the bytes used by a single OS call. Release must
// be called exactly once the bytes are no longer needed, and is safe to call
// more than once.
type Lease struct {
	pool     *Pool
	buf      []byte
	region   Region
	scratch  bool
	released bool
}

// Bytes returns the slice to hand to the OS call.
func (x *Lease) Bytes() []byte { return x.buf }

// Len returns len(x.Bytes()).
func (x *Lease) Len() int { return len(x.buf) }

// Pinned reports whether the lease is over a pinned caller region.
func (x *Lease) Pinned() bool { return x.region.Pinned() }

// Commit records that n bytes were filled, copying them out to the caller's
// region if the lease is backed by scratch. It returns the filled bytes, as
// visible to the caller. For leases from [Pool.Scratch], the returned slice
// aliases the scratch, and is only valid until Release.
func (x *Lease) Commit(n int) []byte {
	if x.released {
		panic("buffer: commit after release")
	}
	n = max(0, min(n, len(x.buf)))
	if err := x.region.Valid(); err != nil {
		return x.buf[:n]
	}
	dst := x.region.Bytes()[:n]
	if x.scratch {
		copy(dst, x.buf[:n])
	}
	return dst
}

// Release returns any scratch to the pool. The lease must not be used after.
func (x *Lease) Release() {
	if x == nil || x.released {
		return
	}
	x.released = true
	if x.scratch {
		x.pool.put(x.buf)
	}
	x.buf = nil
}
