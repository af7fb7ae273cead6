package eventloop

import (
	"sync"
)

// registry tracks in-flight requests. Completed requests are left in place,
// and removed incrementally by Scavenge, using a ring of IDs.
type registry struct {
	// data stores registered requests by ID.
	data map[uint64]*Request

	// ring is a circular buffer of IDs used for scavenging.
	// It allows deterministic checking of all requests over time.
	ring []uint64

	// head is the current cursor position in the ring for the scavenger.
	head int

	// nextID is the counter for generating unique request IDs.
	nextID uint64

	// active is the number of pending requests.
	active int

	mu sync.RWMutex
}

// newRegistry creates a new initialized registry.
func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]*Request),
		ring:   make([]uint64, 0, 1024), // Initial capacity
		nextID: 1,                       // Start at 1 so 0 is null marker
	}
}

func (r *registry) add(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req.id = r.nextID
	r.nextID++
	r.data[req.id] = req
	r.ring = append(r.ring, req.id)
	r.active++
}

// done records that a pending request completed.
func (r *registry) done() {
	r.mu.Lock()
	r.active--
	r.mu.Unlock()
}

// Active returns the number of pending requests.
func (r *registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Scavenge removes completed requests within the next batchSize ring slots.
func (r *registry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ringLen := len(r.ring)
	if ringLen == 0 {
		return
	}

	start := r.head
	end := min(start+batchSize, ringLen)
	for i := start; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		if req, ok := r.data[id]; !ok || req.state != requestPending {
			delete(r.data, id)
			r.ring[i] = 0 // Null marker
		}
	}

	r.head = end
	if r.head >= ringLen {
		r.head = 0
		// Trigger compaction when load factor < 25%
		if len(r.ring) > 256 && len(r.data) < len(r.ring)/4 {
			r.compactAndRenew()
		} else if len(r.data) == 0 {
			r.ring = r.ring[:0]
		}
	}
}

// pending returns the pending requests, in submission order.
func (r *registry) pending() []*Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Request, 0, r.active)
	for _, id := range r.ring {
		if req, ok := r.data[id]; ok && id != 0 && req.state == requestPending {
			out = append(out, req)
		}
	}
	return out
}

// CancelAll cancels every pending request, with err (ECANCELED if nil).
// Completion callbacks are invoked synchronously, in submission order.
func (r *registry) CancelAll(err error) int {
	var n int
	for _, req := range r.pending() {
		if req.Cancel(err) {
			n++
		}
	}
	return n
}

// compactAndRenew removes null markers from the ring buffer AND rebuilds the map.
// Go's delete() doesn't free hashmap bucket array; allocating a new map reclaims memory.
// Must be called with mu.Lock held.
func (r *registry) compactAndRenew() {
	newRing := make([]uint64, 0, len(r.data))
	newData := make(map[uint64]*Request, len(r.data))

	for _, id := range r.ring {
		if id != 0 {
			if req, ok := r.data[id]; ok {
				newRing = append(newRing, id)
				newData[id] = req
			}
		}
	}

	r.ring = newRing
	r.data = newData
	r.head = 0
}
