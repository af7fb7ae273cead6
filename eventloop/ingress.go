package eventloop

import (
	"sync"
)

// chunkSize is the number of tasks per node in the chunkedIngress linked list.
const chunkSize = 128

// chunkedIngress is a chunked linked-list queue of tasks.
//
// Thread Safety: This struct is NOT thread-safe, see taskQueue.
type chunkedIngress struct {
	head   *chunk
	tail   *chunk
	length int
}

// chunkPool prevents GC thrashing under high load.
var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

// chunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int // First unread slot
	pos     int // First unused slot
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk clears task slots, to avoid retaining closures, then pools c.
func returnChunk(c *chunk) {
	clear(c.tasks[:c.pos])
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

func (q *chunkedIngress) push(task func()) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		newTail := newChunk()
		q.tail.next = newTail
		q.tail = newTail
	}
	q.tail.tasks[q.tail.pos] = task
	q.tail.pos++
	q.length++
}

func (q *chunkedIngress) pop() (func(), bool) {
	if q.head == nil || q.length == 0 {
		return nil, false
	}
	if q.head.readPos >= q.head.pos {
		oldHead := q.head
		q.head = q.head.next
		returnChunk(oldHead)
	}
	task := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--
	if q.head.readPos >= q.head.pos && q.head == q.tail {
		q.head.pos = 0
		q.head.readPos = 0
	}
	return task, true
}

// taskQueue guards a chunkedIngress, and may be pushed to from any
// goroutine.
type taskQueue struct {
	mu sync.Mutex
	q  chunkedIngress
}

func (x *taskQueue) push(task func()) {
	x.mu.Lock()
	x.q.push(task)
	x.mu.Unlock()
}

// popBatch moves up to len(buf) tasks into buf, returning the count.
func (x *taskQueue) popBatch(buf []func()) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	var n int
	for n < len(buf) {
		task, ok := x.q.pop()
		if !ok {
			break
		}
		buf[n] = task
		n++
	}
	return n
}

func (x *taskQueue) length() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.q.length
}
