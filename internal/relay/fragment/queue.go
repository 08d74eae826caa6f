// Package fragment builds address-tagged text fragments and accumulates them until broadcast.
package fragment

// Separator - goes between sender address and raw bytes in a tagged fragment.
const Separator = ": "

// Tag - builds "<addr>: <p>" fragment. Exactly len(p) bytes of p are copied,
// zero bytes and missing line ends are kept as is.
func Tag(addr string, p []byte) []byte {
	f := make([]byte, 0, len(addr)+len(Separator)+len(p))
	f = append(f, addr...)
	f = append(f, Separator...)
	return append(f, p...)
}

// Queue - ordered fragments pending for the next broadcast.
// Queue is not safe for concurrent use.
type Queue struct {
	items [][]byte
	size  int
}

// Append - adds fragment to the tail.
func (q *Queue) Append(f []byte) {
	q.items = append(q.items, f)
	q.size += len(f)
}

// Len - returns number of pending fragments.
func (q *Queue) Len() int {
	return len(q.items)
}

// Size - returns total size in bytes of pending fragments.
func (q *Queue) Size() int {
	return q.size
}

// Flush - concatenates fragments in append order and resets the queue.
// Returns nil for empty queue.
func (q *Queue) Flush() []byte {
	defer q.Reset()
	if q.size == 0 {
		return nil
	}
	payload := make([]byte, 0, q.size)
	for _, f := range q.items {
		payload = append(payload, f...)
	}
	return payload
}

// Reset - drops pending fragments.
func (q *Queue) Reset() {
	for i := range q.items {
		q.items[i] = nil
	}
	q.items = q.items[:0]
	q.size = 0
}
