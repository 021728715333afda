package index

// minQueueCap is the smallest ring allocated once a Queue holds items.
const minQueueCap = 16

// Queue is an unbounded FIFO of paths backed by a growable ring buffer.
// It is not safe for concurrent use; the Indexer guards it with its mutex.
type Queue struct {
	buf  []string
	head int
	n    int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len returns the number of queued paths.
func (q *Queue) Len() int { return q.n }

// PushBack appends path to the tail.
func (q *Queue) PushBack(path string) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = path
	q.n++
}

// PopFront removes and returns the head. ok is false when empty.
func (q *Queue) PopFront() (path string, ok bool) {
	if q.n == 0 {
		return "", false
	}
	path = q.buf[q.head]
	q.buf[q.head] = ""
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	if q.n == 0 {
		q.head = 0
	}
	return path, true
}

// Clear drops every queued path and releases the ring.
func (q *Queue) Clear() {
	q.buf = nil
	q.head = 0
	q.n = 0
}

func (q *Queue) grow() {
	size := len(q.buf) * 2
	if size < minQueueCap {
		size = minQueueCap
	}
	buf := make([]string, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
